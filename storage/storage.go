package storage

import "context"

// Storage is the persistence boundary of the bot. Reads are consistent
// with preceding writes; there is no caching layer in front of it.
type Storage interface {
	// GetUser returns nil, nil when the user is unknown.
	GetUser(ctx context.Context, telegramID int64) (*User, error)
	SaveUser(ctx context.Context, user *User) error

	// ActiveAssignments returns the user's assignments in a non-terminal
	// state. The state machine expects zero or one; more is a data bug
	// it refuses to repair.
	ActiveAssignments(ctx context.Context, userID int64) ([]Assignment, error)
	// SeenTopicIDs returns every topic id ever assigned to the user,
	// terminal states included.
	SeenTopicIDs(ctx context.Context, userID int64) ([]string, error)
	InsertAssignment(ctx context.Context, a *Assignment) error
	UpdateAssignment(ctx context.Context, a *Assignment) error

	ActiveTopics(ctx context.Context) ([]Topic, error)
	// GetTopic returns nil, nil when the topic does not exist.
	GetTopic(ctx context.Context, id string) (*Topic, error)

	Close() error
}
