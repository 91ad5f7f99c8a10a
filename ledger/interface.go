package ledger

import (
	"fmt"
	"slices"
	"sort"

	"github.com/aviate-labs/agent-go/candid/idl"
)

const queryAnnotation = "query"

// Interface maps every procedure a service exposes to its Candid signature.
type Interface map[string]*idl.FunctionType

func (i Interface) Lookup(method string) (*idl.FunctionType, bool) {
	f, ok := i[method]
	return f, ok && f != nil
}

// Methods lists the declared procedure names in order.
func (i Interface) Methods() []string {
	names := make([]string, 0, len(i))
	for name := range i {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// isQuery reports whether f is answered by a single replica instead of going through consensus.
func isQuery(f *idl.FunctionType) bool {
	return slices.Contains(f.Annotations, queryAnnotation)
}

// checkArgs encodes args with the declared argument types, so a malformed argument never leaves the process.
func checkArgs(f *idl.FunctionType, args []any) error {
	if len(args) != len(f.ArgumentParameters) {
		return fmt.Errorf("expected %d argument(s), got %d", len(f.ArgumentParameters), len(args))
	}
	types := make([]idl.Type, len(f.ArgumentParameters))
	for i, p := range f.ArgumentParameters {
		types[i] = p.Type
	}
	_, err := idl.Encode(types, args)
	return err
}

func params(types ...idl.Type) []idl.FunctionParameter {
	ps := make([]idl.FunctionParameter, len(types))
	for i, t := range types {
		ps[i] = idl.FunctionParameter{Type: t}
	}
	return ps
}

func result(ok idl.Type) idl.Type {
	return idl.NewVariantType(map[string]idl.Type{
		"Ok":  ok,
		"Err": new(idl.TextType),
	})
}

var (
	accountType = idl.NewRecordType(map[string]idl.Type{
		"owner":      new(idl.PrincipalType),
		"subaccount": idl.NewOptionalType(idl.NewVectorType(idl.Nat8Type())),
	})

	transferArgsWithdrawType = idl.NewRecordType(map[string]idl.Type{
		"recipient":  new(idl.TextType),
		"to_account": accountType,
		"amount":     new(idl.TextType),
	})
)

// MinterInterface is the Candid interface of the bridge minter service.
var MinterInterface = Interface{
	MethodGetMinted: idl.NewFunctionType(
		nil,
		params(idl.NewVectorType(new(idl.TextType))),
		[]string{queryAnnotation},
	),
	MethodGetFinalized: idl.NewFunctionType(
		nil,
		params(idl.NewVectorType(new(idl.TextType))),
		[]string{queryAnnotation},
	),
	MethodPublicKey: idl.NewFunctionType(
		nil,
		params(result(idl.NewRecordType(map[string]idl.Type{"public_key": new(idl.TextType)}))),
		nil,
	),
	MethodWithdraw: idl.NewFunctionType(
		params(transferArgsWithdrawType),
		params(result(idl.NewRecordType(map[string]idl.Type{"tx_digest": new(idl.TextType)}))),
		nil,
	),
}
