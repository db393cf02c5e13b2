package domain

// PriceSample is one successful oracle observation.
// Corresponds to price_samples table in ClickHouse.
type PriceSample struct {
	FeedID    string  // hex feed identifier
	Price     float64 // price * 10^expo, already scaled
	FetchedAt int64   // Unix timestamp in milliseconds
}
