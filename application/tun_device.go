package application

// TunDevice is the local tunnel collaborator: decrypted inbound payloads are
// written to it, and payloads read from it are encrypted and sent out.
type TunDevice interface {
	Read(data []byte) (int, error)
	Write(data []byte) (int, error)
	Close() error
}
