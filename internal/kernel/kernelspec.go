package kernel

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Kernelspec is the relevant subset of a Jupyter kernel.json: the
// argv template (with a literal "{connection_file}" placeholder) and
// display metadata.
type Kernelspec struct {
	DisplayName string            `json:"display_name"`
	Language    string            `json:"language"`
	Argv        []string          `json:"argv"`
	Env         map[string]string `json:"env"`
}

// kernelspecDirs lists the standard Jupyter data directories searched
// for "kernels/<name>/kernel.json", in the order jupyter_client itself
// checks them (user data dir first, then system-wide ones).
func kernelspecDirs() []string {
	var dirs []string
	if dataDir := os.Getenv("JUPYTER_DATA_DIR"); dataDir != "" {
		dirs = append(dirs, filepath.Join(dataDir, "kernels"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "share", "jupyter", "kernels"))
	}
	dirs = append(dirs,
		filepath.Join("/usr", "local", "share", "jupyter", "kernels"),
		filepath.Join("/usr", "share", "jupyter", "kernels"),
	)
	return dirs
}

// FindKernelspec locates and parses kernel.json for the named
// kernelspec, searching kernelspecDirs() in order.
func FindKernelspec(name string) (*Kernelspec, error) {
	for _, dir := range kernelspecDirs() {
		path := filepath.Join(dir, name, "kernel.json")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var spec Kernelspec
		if err := json.Unmarshal(data, &spec); err != nil {
			return nil, errors.WithMessagef(err, "parsing kernelspec %q", name)
		}
		return &spec, nil
	}
	return nil, errNoSuchKernel{name: name}
}

type errNoSuchKernel struct{ name string }

func (e errNoSuchKernel) Error() string { return "kernel: no such kernelspec: " + e.name }

// IsNoSuchKernel reports whether err is the "kernelspec not found"
// sentinel, the Go equivalent of jupyter_client's NoSuchKernel that
// drives the starting→missing transition.
func IsNoSuchKernel(err error) bool {
	_, ok := errors.Cause(err).(errNoSuchKernel)
	return ok
}

// FallbackList builds the ordered list of kernelspec names to try,
// starting with requested and then each of fallbacks, de-duplicated,
// per SPEC_FULL §12's kernelspec-fallback-list behavior: when the
// notebook's requested kernel is missing, a short configured list of
// substitutes is tried before giving up and reporting `missing`.
func FallbackList(requested string, fallbacks []string) []string {
	all := append([]string{requested}, fallbacks...)
	return lo.Uniq(all)
}

// ResolveKernelspec tries each name in order, returning the first one
// found plus the name that matched (which may differ from the
// caller's first choice), or errNoSuchKernel for the original request
// if none of them exist.
func ResolveKernelspec(names []string) (string, *Kernelspec, error) {
	for _, name := range names {
		if spec, err := FindKernelspec(name); err == nil {
			return name, spec, nil
		}
	}
	if len(names) == 0 {
		return "", nil, errNoSuchKernel{name: ""}
	}
	return "", nil, errNoSuchKernel{name: names[0]}
}

// freePort asks the OS for an unused TCP port by briefly binding to
// port 0, the same trick jupyter_client's `write_connection_file`
// uses (via Python's socket module) to pick five non-conflicting ports
// before the kernel process exists to bind them itself.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// newConnectionInfo allocates five free ports and a random HMAC key,
// producing a ConnectionInfo ready to be written to a connection file
// and handed to a launched kernel process.
func newConnectionInfo() (ConnectionInfo, error) {
	ports := make([]int, 5)
	for i := range ports {
		p, err := freePort()
		if err != nil {
			return ConnectionInfo{}, errors.WithMessage(err, "allocating kernel port")
		}
		ports[i] = p
	}
	return ConnectionInfo{
		Transport:       "tcp",
		IP:              "127.0.0.1",
		SignatureScheme: "hmac-sha256",
		Key:             newUUID(),
		ShellPort:       ports[0],
		IOPubPort:       ports[1],
		StdinPort:       ports[2],
		ControlPort:     ports[3],
		HBPort:          ports[4],
	}, nil
}
