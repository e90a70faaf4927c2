package sandbox

import "fmt"

// EscapeError reports a path that resolves outside its sandbox root.
type EscapeError struct {
	Sandbox string
	Path    string
}

func (e EscapeError) Error() string {
	return fmt.Sprintf("sandbox %q: path %q escapes root", e.Sandbox, e.Path)
}

// ModeError reports an operation the sandbox mode forbids.
type ModeError struct {
	Sandbox   string
	Path      string
	Operation string
}

func (e ModeError) Error() string {
	return fmt.Sprintf("sandbox %q is read-only: %s blocked for %q", e.Sandbox, e.Operation, e.Path)
}

// SizeError reports content exceeding the sandbox byte limit.
type SizeError struct {
	Sandbox string
	Path    string
	Size    int64
	Limit   int64
}

func (e SizeError) Error() string {
	return fmt.Sprintf("sandbox %q: %q is %d bytes, limit %d", e.Sandbox, e.Path, e.Size, e.Limit)
}

// SuffixError reports a file suffix outside the sandbox allow-list.
type SuffixError struct {
	Sandbox string
	Path    string
	Suffix  string
}

func (e SuffixError) Error() string {
	return fmt.Sprintf("sandbox %q: suffix %q not allowed for %q", e.Sandbox, e.Suffix, e.Path)
}
