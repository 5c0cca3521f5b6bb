package history

// Store defines the export history operations.
// Consumers should depend on this interface rather than the concrete *DB type.
type Store interface {
	Insert(r Record) error
	Get(id string) (*Record, error)
	List(questlineID string, limit, offset int) ([]Record, int, error)
	Delete(id string) error
	Objects() (map[string]string, error)
	QuestHistory(questKey string, limit int) ([]QuestUse, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
