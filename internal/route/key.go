package route

import "strings"

// Key identifies a route inside one tap. Methods compare case-insensitively
// and paths always carry a leading slash.
type Key struct {
	Method string
	Path   string
}

func NewKey(method, path string) Key {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return Key{
		Method: strings.ToLower(method),
		Path:   path,
	}
}

func (k Key) String() string {
	return strings.ToUpper(k.Method) + " " + k.Path
}
