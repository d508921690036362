package models

// OffsiteConfig holds the SSH target archives are pushed to after creation.
type OffsiteConfig struct {
	Host          string
	Port          int
	Username      string
	PrivateKey    []byte // loaded from file path
	KeyPath       string // path to key file
	RemoteDir     string // directory on the target receiving archives
	Shutdown      bool   // shut the target down after the push
	ShutdownDelay int    // minutes before shutdown
	OS            string // "linux" (default) or "windows"
}

// OffsiteResult holds the result of an SSH operation.
type OffsiteResult struct {
	CommandRun bool
	RemotePath string
	BytesSent  int64
	Output     string
	Error      error
}
