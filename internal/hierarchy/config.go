package hierarchy

// Config is the hierarchy.* configuration block of spec §6.
type Config struct {
	MaxMemoriesPerNode    int
	MaxHierarchyDepth     int
	RebalanceIntervalHours int
	EnableCompression     bool
	CompressionThreshold  float64
}

func DefaultConfig() Config {
	return Config{
		MaxMemoriesPerNode:     500,
		MaxHierarchyDepth:      8,
		RebalanceIntervalHours: 6,
		EnableCompression:      true,
		CompressionThreshold:   0.2,
	}
}
