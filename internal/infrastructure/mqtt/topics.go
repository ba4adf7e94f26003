package mqtt

import "strings"

// DefaultTopicRoot is used when the configuration leaves topic_root empty.
const DefaultTopicRoot = "ism7"

// Topics builds the service-level topics below a configurable root.
// Bridge topics (raw feed, acks, parameter state) are built by the ism7
// package from the same root.
//
//	topics := mqtt.NewTopics("ism7")
//	topics.SystemStatus() // "ism7/system/status"
type Topics struct {
	Root string
}

// NewTopics returns topic builders for root. Trailing slashes are trimmed.
func NewTopics(root string) Topics {
	root = strings.TrimRight(root, "/")
	if root == "" {
		root = DefaultTopicRoot
	}
	return Topics{Root: root}
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: ism7/system/status
func (t Topics) SystemStatus() string {
	return t.Root + "/system/status"
}

// All returns a pattern matching every topic below the root.
// Use with caution - this receives ALL bridge traffic.
//
// Pattern: ism7/#
func (t Topics) All() string {
	return t.Root + "/#"
}
