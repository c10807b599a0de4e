//go:build interop_bgp

package interop_bgp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/dantte-lp/bgpwatch/internal/command"
)

// podmanSocketPath is the default Podman API socket.
const podmanSocketPath = "/run/podman/podman.sock"

// podman talks to the Podman REST API over its unix socket, so no podman
// CLI binary is required on the test host.
type podman struct {
	client *http.Client
}

func newPodman() *podman {
	var d net.Dialer
	return &podman{client: &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return d.DialContext(ctx, "unix", podmanSocketPath)
			},
		},
	}}
}

// url builds a URL for the Podman REST API (compat endpoint).
func (p *podman) url(path string) string {
	return "http://d/v5.0.0" + path
}

// post sends a bodyless or JSON POST and checks the status against ok.
func (p *podman) post(ctx context.Context, path string, body any, ok ...int) (*http.Response, error) {
	var r io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", path, err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url(path), r)
	if err != nil {
		return nil, fmt.Errorf("create request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	for _, code := range ok {
		if resp.StatusCode == code {
			return resp, nil
		}
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(resp.Body)
	return nil, fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, msg)
}

// exec runs argv inside container and returns its stdout and stderr, plus
// the exit code.
func (p *podman) exec(ctx context.Context, container string, argv ...string) (string, string, int, error) {
	resp, err := p.post(ctx, "/containers/"+container+"/exec", map[string]any{
		"Cmd":          argv,
		"AttachStdout": true,
		"AttachStderr": true,
	}, http.StatusCreated)
	if err != nil {
		return "", "", 0, err
	}
	var created struct {
		ID string `json:"Id"`
	}
	err = json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if err != nil {
		return "", "", 0, fmt.Errorf("decode exec create response: %w", err)
	}

	resp, err = p.post(ctx, "/exec/"+created.ID+"/start", map[string]any{"Detach": false}, http.StatusOK)
	if err != nil {
		return "", "", 0, err
	}
	stdout, stderr, err := demuxStream(resp.Body)
	resp.Body.Close()
	if err != nil {
		return stdout, stderr, 0, fmt.Errorf("read exec output from %s: %w", container, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url("/exec/"+created.ID+"/json"), nil)
	if err != nil {
		return stdout, stderr, 0, fmt.Errorf("create exec inspect request: %w", err)
	}
	inspect, err := p.client.Do(req)
	if err != nil {
		return stdout, stderr, 0, fmt.Errorf("inspect exec in %s: %w", container, err)
	}
	defer inspect.Body.Close()

	var state struct {
		ExitCode int `json:"ExitCode"`
	}
	if err := json.NewDecoder(inspect.Body).Decode(&state); err != nil {
		return stdout, stderr, 0, fmt.Errorf("decode exec inspect: %w", err)
	}
	return stdout, stderr, state.ExitCode, nil
}

// stop stops a container. 304 means it was already stopped.
func (p *podman) stop(ctx context.Context, container string) error {
	resp, err := p.post(ctx, "/containers/"+container+"/stop?t=10", nil,
		http.StatusNoContent, http.StatusNotModified)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// start starts a container. 304 means it was already running.
func (p *podman) start(ctx context.Context, container string) error {
	resp, err := p.post(ctx, "/containers/"+container+"/start", nil,
		http.StatusNoContent, http.StatusNotModified)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// logs returns the last tail lines of container logs.
func (p *podman) logs(ctx context.Context, container string, tail int) (string, error) {
	path := fmt.Sprintf("/containers/%s/logs?stdout=true&stderr=true&tail=%d", container, tail)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(path), nil)
	if err != nil {
		return "", fmt.Errorf("create logs request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("logs %s: %w", container, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("logs %s: status %d: %s", container, resp.StatusCode, msg)
	}

	stdout, stderr, _ := demuxStream(resp.Body)
	return stdout + stderr, nil
}

// demuxStream splits the Docker multiplexed stream protocol into stdout and
// stderr. Each frame: [stream_type(1)][padding(3)][size(4 BE)][payload].
func demuxStream(r io.Reader) (string, string, error) {
	var stdout, stderr strings.Builder
	header := make([]byte, 8)

	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return stdout.String(), stderr.String(), err
		}

		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		if size == 0 {
			continue
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return stdout.String(), stderr.String(), err
		}

		if header[0] == 2 {
			stderr.Write(payload)
		} else {
			stdout.Write(payload)
		}
	}

	return stdout.String(), stderr.String(), nil
}

// -------------------------------------------------------------------------
// podmanRunner: command.Runner inside a container
// -------------------------------------------------------------------------

// podmanRunner runs router CLIs inside a lab container, so the probes
// shell out exactly as they would on the router host.
type podmanRunner struct {
	p         *podman
	container string
}

func (r podmanRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	stdout, stderr, code, err := r.p.exec(ctx, r.container, append([]string{name}, args...)...)
	if err != nil {
		return nil, &command.Error{Command: command.Line(name, args...), ExitCode: -1, Err: err}
	}
	if code != 0 {
		return []byte(stdout), &command.Error{
			Command:  command.Line(name, args...),
			ExitCode: code,
			Stderr:   strings.TrimSpace(stderr),
			Err:      fmt.Errorf("exit status %d in %s", code, r.container),
		}
	}
	return []byte(stdout), nil
}
