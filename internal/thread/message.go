package thread

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingID   = errors.New("message id is required")
	ErrDuplicateID = errors.New("duplicate message id")
)

// Message is one node in a conversation tree.
type Message struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"`
	Text    string    `json:"message"`
	Replies []Message `json:"replies"`
}

// MarshalJSON always emits replies as an array, so leaves written without a
// replies field come out as "replies": [] rather than null.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	p := plain(m)
	if p.Replies == nil {
		p.Replies = []Message{}
	}
	return json.Marshal(p)
}

// Conversation is the wire envelope for a forest of root messages.
type Conversation struct {
	Messages []Message `json:"conversation"`
}

// Count returns the number of messages in the forest, replies included.
func Count(forest []Message) int {
	n := 0
	for _, m := range forest {
		n += 1 + Count(m.Replies)
	}
	return n
}

// Validate checks that every message carries an id and that ids are unique
// across the whole forest. Annotations are correlated by a flat id lookup,
// so sibling-level uniqueness is not enough.
func Validate(forest []Message) error {
	seen := make(map[string]struct{}, Count(forest))
	var walk func(msgs []Message, path string) error
	walk = func(msgs []Message, path string) error {
		for i, m := range msgs {
			at := fmt.Sprintf("%s[%d]", path, i)
			if strings.TrimSpace(m.ID) == "" {
				return fmt.Errorf("%s: %w", at, ErrMissingID)
			}
			if _, dup := seen[m.ID]; dup {
				return fmt.Errorf("%s: %w %q", at, ErrDuplicateID, m.ID)
			}
			seen[m.ID] = struct{}{}
			if err := walk(m.Replies, at+".replies"); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(forest, "conversation")
}
