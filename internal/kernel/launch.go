package kernel

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// launchedKernel is a kernel process started from a Kernelspec, plus
// the connection info it was given.
type launchedKernel struct {
	cmd  *exec.Cmd
	info ConnectionInfo
	file string
}

// launchKernel allocates ports, writes a connection file, substitutes
// it into the kernelspec's argv template, and starts the process. The
// connection file is removed when the process is later stopped.
func launchKernel(spec *Kernelspec) (*launchedKernel, error) {
	info, err := newConnectionInfo()
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "euporie-kernel-*.json")
	if err != nil {
		return nil, errors.WithMessage(err, "creating connection file")
	}
	defer tmp.Close()
	if err := json.NewEncoder(tmp).Encode(info); err != nil {
		os.Remove(tmp.Name())
		return nil, errors.WithMessage(err, "writing connection file")
	}

	argv := make([]string, len(spec.Argv))
	for i, a := range spec.Argv {
		argv[i] = strings.ReplaceAll(a, "{connection_file}", tmp.Name())
	}
	if len(argv) == 0 {
		os.Remove(tmp.Name())
		return nil, errors.New("kernel: kernelspec has an empty argv")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		os.Remove(tmp.Name())
		return nil, errors.WithMessagef(err, "starting kernel process %q", filepath.Base(argv[0]))
	}

	return &launchedKernel{cmd: cmd, info: info, file: tmp.Name()}, nil
}

func (k *launchedKernel) stop() {
	if k.cmd != nil && k.cmd.Process != nil {
		_ = k.cmd.Process.Kill()
		_ = k.cmd.Wait()
	}
	if k.file != "" {
		os.Remove(k.file)
	}
}
