package models

// Coin is a tradable cryptocurrency. Index is the exchange ticker used to look up
// its price (e.g. BTCUSDT), Abbreviation is what users see (e.g. BTC).
type Coin struct {
	ID           uint      `gorm:"primaryKey"`
	Index        string    `gorm:"column:price_index;size:30;not null"`
	Abbreviation string    `gorm:"size:30"`
	Balances     []Balance `gorm:"constraint:OnDelete:CASCADE;"`
}

// CoinProjection is the API view of a coin.
type CoinProjection struct {
	ID           uint   `json:"id"`
	Abbreviation string `json:"abbreviation"`
}

func (c Coin) Projection() CoinProjection {
	return CoinProjection{ID: c.ID, Abbreviation: c.Abbreviation}
}
