package runaccess

import (
	"fmt"

	"flume/internal/ipc"
	"flume/internal/store"
)

// Session represents an access handle and its cleanup function.
type Session struct {
	Access Access
	// Direct reports that the session bypasses the daemon and reads
	// the database itself.
	Direct bool

	close func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries daemon-backed access first, then falls back
// to opening the store directly.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openStore func() (*store.Store, error),
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{
				Access: NewIPCAccess(client),
				close:  client.Close,
			}, nil
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open store: no store opener configured")
	}
	st, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(st),
		Direct: true,
		close:  st.Close,
	}, nil
}
