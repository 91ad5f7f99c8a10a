package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/dungnh3/most-explorer/controller"
	"github.com/dungnh3/most-explorer/internal/models"
	"github.com/dungnh3/most-explorer/ledger"
	"github.com/dungnh3/most-explorer/parser"
	"github.com/dungnh3/most-explorer/table"
)

type fakeSource struct {
	minted    []string
	mintErr   error
	finalized []string
	burnErr   error
	gate      chan struct{}
}

func (f *fakeSource) HasTrustRoot() bool { return true }

func (f *fakeSource) FetchRootKey(ctx context.Context) error { return nil }

func (f *fakeSource) GetMintedTransactions(ctx context.Context) ([]string, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.minted, f.mintErr
}

func (f *fakeSource) GetFinalizedTransactions(ctx context.Context) ([]string, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.finalized, f.burnErr
}

func (f *fakeSource) wait(ctx context.Context) error {
	if f.gate == nil {
		return nil
	}
	select {
	case <-f.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeKeys struct {
	res ledger.PublicKeyResult
	err error
}

func (f fakeKeys) PublicKey(ctx context.Context) (ledger.PublicKeyResult, error) {
	return f.res, f.err
}

type fakeStatus struct {
	st  *ledger.ReplicaStatus
	err error
}

func (f fakeStatus) Status(ctx context.Context) (*ledger.ReplicaStatus, error) {
	return f.st, f.err
}

func mintRaw(block int) string {
	return fmt.Sprintf(`{"block_index":"%d","date":"1700000000000000000","amount":"%d000","from":"0xA%d","to":"bd3sg-teaaa"}`, block, block, block)
}

func burnRaw(block int) string {
	return fmt.Sprintf(`{"block_index":"%d","date":"1700000000000000000","amount":"7","from":"bnz7o","tx":"https://suiscan.xyz/testnet/tx/D%d"}`, block, block)
}

func newTestServer(t *testing.T, src *fakeSource, opts ...Option) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	factory := func() *controller.Controller {
		return controller.New(src, parser.New(time.UTC), controller.WithLogger(zaptest.NewLogger(t)))
	}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithRegistry(reg)}, opts...)
	s, err := New(factory, fakeKeys{res: ledger.PublicKeyResult{Ok: &ledger.PublicKeyReply{PublicKey: "AkdN"}}}, opts...)
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	return s, reg
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

// mount creates a view through the index route and waits for its lanes to settle.
func mount(t *testing.T, s *Server, h http.Handler) string {
	t.Helper()
	rec := do(h, http.MethodGet, "/")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected %d, got %d", http.StatusSeeOther, rec.Code)
	}
	id := strings.TrimPrefix(rec.Header().Get("Location"), "/views/")
	v, err := s.views.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("expected the view to be registered, got %v", err)
	}
	select {
	case <-v.ctrl.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("view did not settle")
	}
	return id
}

func decodeTable(t *testing.T, rec *httptest.ResponseRecorder) tableJSON {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out tableJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	return out
}

func TestServer_showView(t *testing.T) {
	src := &fakeSource{minted: []string{mintRaw(5)}, finalized: []string{burnRaw(9)}}
	s, _ := newTestServer(t, src)
	h := s.Handler()
	id := mount(t, s, h)

	rec := do(h, http.MethodGet, "/views/"+id)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		PageTitle,
		MintTitle,
		"Finalized transactions ckSUI -&gt; SUI",
		"5000 MIST",
		"ckSUI",
		"14-11-2023 10:13:20",
		`href="https://suiscan.xyz/testnet/tx/D9"`,
		"Tx on SUI",
		"Page 1 of 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected the page to contain %q", want)
		}
	}
	if strings.Contains(body, "http-equiv=\"refresh\"") {
		t.Errorf("expected no refresh on a settled view")
	}
}

func TestServer_showViewWhileLoading(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	defer close(src.gate)
	s, _ := newTestServer(t, src)
	h := s.Handler()

	rec := do(h, http.MethodGet, "/")
	loc := rec.Header().Get("Location")
	rec = do(h, http.MethodGet, loc)
	body := rec.Body.String()
	if !strings.Contains(body, "http-equiv=\"refresh\"") {
		t.Errorf("expected a refreshing page while loading")
	}
	if !strings.Contains(body, "Loading...") {
		t.Errorf("expected a busy indicator")
	}
	if strings.Contains(body, table.NoResults) {
		t.Errorf("expected busy to differ from empty")
	}
}

func TestServer_unknownView(t *testing.T) {
	s, _ := newTestServer(t, &fakeSource{})
	h := s.Handler()
	for _, target := range []string{"/views/nope", "/views/nope/minted", "/views/nope/finalized"} {
		if rec := do(h, http.MethodGet, target); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", target, rec.Code)
		}
	}
	if rec := do(h, http.MethodDelete, "/views/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestServer_tableState(t *testing.T) {
	var minted []string
	for i := 1; i <= 25; i++ {
		minted = append(minted, mintRaw(i))
	}
	s, _ := newTestServer(t, &fakeSource{minted: minted})
	h := s.Handler()
	id := mount(t, s, h)

	cases := []struct {
		query     string
		firstCell string
		rows      int
		pageCount int
		pageIndex int
	}{
		{"", "1", 10, 3, 0},
		{"?mint.sort=block_index:desc", "25", 10, 3, 0},
		{"?mint.sort=block_index:desc&mint.page=3", "5", 5, 3, 2},
		{"?mint.size=4&mint.page=2", "5", 4, 7, 1},
		{"?mint.f.from=0xa2", "2", 7, 1, 0},
		{"?mint.f.from=0xa2&mint.sort=block_index:desc", "25", 7, 1, 0},
		{"?mint.page=99", "21", 5, 3, 2},
		{"?burn.sort=block_index:desc", "1", 10, 3, 0},
	}
	for _, c := range cases {
		out := decodeTable(t, do(h, http.MethodGet, "/views/"+id+"/minted"+c.query))
		if out.Mode != table.ModeRows {
			t.Fatalf("%s: expected rows, got %s", c.query, out.Mode)
		}
		if got := out.Rows[0][0].Text; got != c.firstCell {
			t.Errorf("%s: expected first block %s, got %s", c.query, c.firstCell, got)
		}
		if len(out.Rows) != c.rows || out.PageCount != c.pageCount || out.PageIndex != c.pageIndex {
			t.Errorf("%s: expected %d rows on page %d of %d, got %d on %d of %d", c.query,
				c.rows, c.pageIndex, c.pageCount, len(out.Rows), out.PageIndex, out.PageCount)
		}
	}
}

func TestServer_lanesFailIndependently(t *testing.T) {
	src := &fakeSource{mintErr: errors.New("replica unavailable"), finalized: []string{}}
	s, _ := newTestServer(t, src)
	h := s.Handler()
	id := mount(t, s, h)

	minted := decodeTable(t, do(h, http.MethodGet, "/views/"+id+"/minted"))
	if minted.Mode != table.ModeFailed || minted.State != "failed" {
		t.Errorf("expected a failed mint table, got %s/%s", minted.Mode, minted.State)
	}
	if !strings.Contains(minted.Message, "replica unavailable") {
		t.Errorf("expected the error in the message, got %q", minted.Message)
	}

	finalized := decodeTable(t, do(h, http.MethodGet, "/views/"+id+"/finalized"))
	if finalized.Mode != table.ModeEmpty || finalized.Message != table.NoResults {
		t.Errorf("expected an empty finalized table, got %s %q", finalized.Mode, finalized.Message)
	}
	if finalized.Lane != controller.LaneBurn {
		t.Errorf("expected the burn lane, got %s", finalized.Lane)
	}
}

func TestServer_closeView(t *testing.T) {
	s, reg := newTestServer(t, &fakeSource{})
	h := s.Handler()
	first := mount(t, s, h)
	second := mount(t, s, h)

	if got := testutil.ToFloat64(s.active); got != 2 {
		t.Errorf("expected 2 views, got %v", got)
	}
	v, _ := s.views.Get(context.Background(), first)

	if rec := do(h, http.MethodDelete, "/views/"+first); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if v.ctrl.Alive() {
		t.Errorf("expected the controller to be unmounted")
	}
	if rec := do(h, http.MethodPost, "/views/"+second+"/close"); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/views/"+first); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(s.active); got != 0 {
		t.Errorf("expected 0 views, got %v", got)
	}
	if n, err := testutil.GatherAndCount(reg, "most_explorer_views"); err != nil || n != 1 {
		t.Errorf("expected the view gauge to be registered, got %d, %v", n, err)
	}
}

func TestServer_Sweep(t *testing.T) {
	s, _ := newTestServer(t, &fakeSource{}, WithViewTTL(time.Minute))
	h := s.Handler()
	id := mount(t, s, h)

	n, err := s.Sweep(context.Background())
	if err != nil || n != 0 {
		t.Errorf("expected nothing swept, got %d, %v", n, err)
	}

	later := time.Now().Add(2 * time.Minute)
	s.now = func() time.Time { return later }
	n, err = s.Sweep(context.Background())
	if err != nil || n != 1 {
		t.Errorf("expected 1 view swept, got %d, %v", n, err)
	}
	if rec := do(h, http.MethodGet, "/views/"+id); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestServer_publicKey(t *testing.T) {
	cases := []struct {
		keys   KeySource
		status int
		body   string
	}{
		{fakeKeys{res: ledger.PublicKeyResult{Ok: &ledger.PublicKeyReply{PublicKey: "AkdN"}}}, http.StatusOK, `"public_key":"AkdN"`},
		{fakeKeys{res: ledger.PublicKeyResult{Err: ptr("not ready")}}, http.StatusBadGateway, "not ready"},
		{fakeKeys{err: &ledger.TransportError{Method: "public_key", Err: ledger.ErrTrustRootMissing}}, http.StatusServiceUnavailable, "trust root"},
		{nil, http.StatusNotFound, "not served"},
	}
	for _, c := range cases {
		s, err := New(func() *controller.Controller { return nil }, c.keys, WithRegistry(prometheus.NewRegistry()))
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		rec := do(s.Handler(), http.MethodGet, "/api/minter/public-key")
		if rec.Code != c.status {
			t.Errorf("expected %d, got %d", c.status, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), c.body) {
			t.Errorf("expected body to contain %q, got %s", c.body, rec.Body.String())
		}
	}
}

func TestServer_healthzAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, &fakeSource{})
	h := s.Handler()
	mount(t, s, h)

	rec := do(h, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"views":1`) {
		t.Errorf("unexpected healthz %d %s", rec.Code, rec.Body.String())
	}
	rec = do(h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "most_explorer_views 1") {
		t.Errorf("unexpected metrics %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_readyz(t *testing.T) {
	cases := []struct {
		name   string
		opts   []Option
		status int
		body   string
	}{
		{"no status source", nil, http.StatusOK, `"status":"ok"`},
		{"trusted", []Option{WithStatusSource(fakeStatus{st: &ledger.ReplicaStatus{APIVersion: "0.18.0", TrustRoot: true}})},
			http.StatusOK, `"ic_api_version":"0.18.0"`},
		{"untrusted", []Option{WithStatusSource(fakeStatus{st: &ledger.ReplicaStatus{APIVersion: "0.18.0"}})},
			http.StatusServiceUnavailable, "no trust root"},
		{"unreachable", []Option{WithStatusSource(fakeStatus{err: &ledger.TransportError{Method: "status", Err: errors.New("connection refused")}})},
			http.StatusServiceUnavailable, "connection refused"},
	}
	for _, c := range cases {
		s, _ := newTestServer(t, &fakeSource{}, c.opts...)
		rec := do(s.Handler(), http.MethodGet, "/readyz")
		if rec.Code != c.status {
			t.Errorf("%s: expected %d, got %d", c.name, c.status, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), c.body) {
			t.Errorf("%s: expected body to contain %q, got %s", c.name, c.body, rec.Body.String())
		}
	}
}

func TestParseState(t *testing.T) {
	q, _ := url.ParseQuery("mint.sort=date:desc,block_index,,amount:ASC&mint.page=2&mint.size=500&mint.f.from=0xA&mint.f.to=&burn.page=3")
	st := ParseState(q, mintPrefix, 10)
	expected := TableState{
		Sorting: []table.SortSpec{{ID: "date", Desc: true}, {ID: "block_index"}, {ID: "amount"}},
		Filters: map[string]string{"from": "0xA"},
		Page:    2,
		Size:    maxPageSize,
	}
	if !reflect.DeepEqual(st, expected) {
		t.Errorf("expected %+v, got %+v", expected, st)
	}

	st = ParseState(url.Values{"mint.page": {"-1"}, "mint.size": {"x"}}, mintPrefix, 10)
	if st.Page != 0 || st.Size != 10 {
		t.Errorf("expected defaults, got %+v", st)
	}
}

func TestTableState_Encode(t *testing.T) {
	q := url.Values{"mint.page": {"9"}, "mint.f.to": {"x"}, "burn.page": {"3"}}
	st := TableState{
		Sorting: []table.SortSpec{{ID: "date", Desc: true}, {ID: "block_index"}},
		Filters: map[string]string{"from": "0xA"},
		Page:    1,
		Size:    10,
	}
	st.Encode(q, mintPrefix)
	expected := "burn.page=3&mint.f.from=0xA&mint.size=10&mint.sort=date%3Adesc%2Cblock_index"
	if got := q.Encode(); got != expected {
		t.Errorf("expected %s, got %s", expected, got)
	}
	if back := ParseState(q, mintPrefix, 10); !reflect.DeepEqual(back.Sorting, st.Sorting) || back.Filters["from"] != "0xA" {
		t.Errorf("expected the state to read back, got %+v", back)
	}
}

func TestRenderTable_links(t *testing.T) {
	var records []string
	for i := 1; i <= 12; i++ {
		records = append(records, mintRaw(i))
	}
	mints, err := parser.New(time.UTC).NormalizeMints(records)
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	q, _ := url.ParseQuery("mint.sort=block_index&burn.page=2")
	data := renderTable("/views/x", q, mintPrefix, MintTitle, MintColumns(),
		controller.LaneSnapshot[models.MintedRecord]{State: controller.Loaded, Records: mints}, 10)

	if data.Headers[0].SortLink != "/views/x?burn.page=2&mint.size=10&mint.sort=block_index%3Adesc" {
		t.Errorf("unexpected sort link %s", data.Headers[0].SortLink)
	}
	if data.Headers[1].SortLink != "/views/x?burn.page=2&mint.size=10&mint.sort=date" {
		t.Errorf("unexpected sort link %s", data.Headers[1].SortLink)
	}
	if data.Headers[3].SortLink != "" {
		t.Errorf("expected the token symbol column to be unsortable")
	}
	if data.PrevLink != "" {
		t.Errorf("expected no previous page")
	}
	if data.NextLink != "/views/x?burn.page=2&mint.page=2&mint.size=10&mint.sort=block_index" {
		t.Errorf("unexpected next link %s", data.NextLink)
	}
	hidden := map[string]string{}
	for _, f := range data.Hidden {
		hidden[f.Name] = f.Value
	}
	if hidden["burn.page"] != "2" || hidden["mint.sort"] != "block_index" || hidden["mint.page"] != "" {
		t.Errorf("unexpected hidden fields %v", data.Hidden)
	}

	q, _ = url.ParseQuery("mint.page=2")
	data = renderTable("/views/x", q, mintPrefix, MintTitle, MintColumns(),
		controller.LaneSnapshot[models.MintedRecord]{State: controller.Loaded, Records: mints}, 10)
	if data.PrevLink != "/views/x?mint.size=10" || data.NextLink != "" {
		t.Errorf("unexpected page links %q and %q", data.PrevLink, data.NextLink)
	}
}

func ptr[T any](v T) *T { return &v }
