package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorruptSession is returned for a stored value that is not a session record.
var ErrCorruptSession = errors.New("corrupt session record")

// Encode serializes sess at the current schema version. Only the fields of
// [Session] are written, so legacy keys read from an older record are dropped.
func Encode(sess *Session) ([]byte, error) {
	if sess == nil {
		return nil, errors.New("nil session")
	}
	out := *sess
	out.SchemaVersion = CurrentSchemaVersion
	return json.Marshal(&out)
}

// Decode parses a stored record. Unknown fields are ignored. Records without
// a version predate versioning and are read as version 0.
func Decode(data []byte) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if sess.SchemaVersion < 0 || sess.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrCorruptSession, sess.SchemaVersion)
	}
	return &sess, nil
}
