package models

// SequenceCounter is a named atomic counter row. Mutated only through
// single-statement increments so monotonicity holds across server instances.
type SequenceCounter struct {
	Name  string `gorm:"column:name;primaryKey"`
	Value int64  `gorm:"column:value;not null;default:0"`
}
