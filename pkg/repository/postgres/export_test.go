package postgres

var (
	SupportsIterativeScan = supportsIterativeScan
	EFSearch              = efSearch
)
