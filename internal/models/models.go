package models

// MintedRecord is a deposit on the source chain that minted wrapped tokens.
type MintedRecord struct {
	BlockIndex string `json:"block_index"`
	// formatted DD-MM-YYYY hh:mm:ss, or "Invalid date"
	Date   string `json:"date"`
	Amount string `json:"amount"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// BurnRecord is a burn of wrapped tokens that released the asset on the source chain.
type BurnRecord struct {
	BlockIndex string `json:"block_index"`
	Date       string `json:"date"`
	Amount     string `json:"amount"`
	From       string `json:"from"`
	// digest of the release transaction on the source chain
	Tx string `json:"tx"`
}
