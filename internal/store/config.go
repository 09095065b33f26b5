package store

import "github.com/louloulin/agentmem/internal/domain"

// Config is the hierarchy.* configuration block of spec §6.
type Config struct {
	AutoResolveConflicts        bool
	EnableInheritance            bool
	MaxMemoriesPerScopeLevel     int
	DefaultConflictStrategy      domain.ConflictStrategy
	InheritanceQualityThreshold  float64
	EnableMemoryCompression      bool
	MemoryAgingDays              int
}

func DefaultConfig() Config {
	return Config{
		AutoResolveConflicts:       true,
		EnableInheritance:          true,
		MaxMemoriesPerScopeLevel:   1000,
		DefaultConflictStrategy:    domain.ConflictImportanceBased,
		InheritanceQualityThreshold: 0.7,
		EnableMemoryCompression:    true,
		MemoryAgingDays:            30,
	}
}
