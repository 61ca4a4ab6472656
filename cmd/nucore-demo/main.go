// Command nucore-demo drives a complete Core A handshake between two
// in-process peers and a Core B tab lifecycle against a console Host,
// in the same "thin main.go calling the library" shape as the teacher's
// cmd/ublk-mem: flags, a logger, a handful of library calls, status
// printed to stdout.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nushift/nucore"
	"github.com/nushift/nucore/internal/capspace"
	"github.com/nushift/nucore/internal/deferred"
	"github.com/nushift/nucore/internal/logging"
)

// consoleHost is a nucore.Host (and nucore.GfxHost) that just logs whatever
// it's given, standing in for an actual browser-tab chrome.
type consoleHost struct {
	logger  *logging.Logger
	outputs []deferred.Output
}

func (h *consoleHost) SetTitle(title string) error {
	h.logger.Info("host: title updated", "title", title)
	return nil
}

func (h *consoleHost) PublishAccessibilityTree(tree deferred.AccessibilityTree) error {
	h.logger.Info("host: accessibility tree updated", "surfaces", len(tree.Surfaces))
	return nil
}

func (h *consoleHost) PresentFrame(format deferred.PresentBufferFormat, buffer []byte) error {
	h.logger.Info("host: frame presented", "format", format, "bytes", len(buffer))
	return nil
}

func (h *consoleHost) Outputs() []deferred.Output {
	return h.outputs
}

var _ nucore.GfxHost = (*consoleHost)(nil)

func main() {
	verbose := flag.Bool("v", false, "verbose output")
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if err := runHandshake(logger); err != nil {
		logger.Error("handshake demo failed", "error", err)
		os.Exit(1)
	}
	if err := runTab(logger); err != nil {
		logger.Error("tab demo failed", "error", err)
		os.Exit(1)
	}
}

// runHandshake drives a full three-message Noise handshake between a
// ClientConfig-started and a ServerConfig-started Session, the Core A half
// of spec.md: a QUIC transport would drive exactly this sequence, feeding
// each WriteHandshake output into the peer's ReadHandshake.
func runHandshake(logger *logging.Logger) error {
	clientConfig, err := nucore.NewClientConfig(nucore.NoiseConfig{})
	if err != nil {
		return err
	}
	serverConfig, err := nucore.NewServerConfig(nucore.NoiseConfig{})
	if err != nil {
		return err
	}

	client, err := clientConfig.StartSession([]byte("nucore-demo client transport params"))
	if err != nil {
		return err
	}
	server, err := serverConfig.StartSession([]byte("nucore-demo server transport params"))
	if err != nil {
		return err
	}

	msg1, _, err := client.WriteHandshake()
	if err != nil {
		return err
	}
	if _, err := server.ReadHandshake(msg1); err != nil {
		return err
	}

	if _, _, err := server.WriteHandshake(); err != nil { // upgrades to Handshake keys only
		return err
	}
	msg2, _, err := server.WriteHandshake()
	if err != nil {
		return err
	}
	if _, err := client.ReadHandshake(msg2); err != nil {
		return err
	}

	msg3, _, err := client.WriteHandshake()
	if err != nil {
		return err
	}
	finished, err := server.ReadHandshake(msg3)
	if err != nil {
		return err
	}
	if !finished {
		return fmt.Errorf("nucore-demo: server did not finish on message 3")
	}
	if _, _, err := server.WriteHandshake(); err != nil { // upgrades to 1-RTT keys
		return err
	}

	logger.Info("handshake complete",
		"client_finished", !client.IsHandshaking(),
		"server_finished", !server.IsHandshaking())

	serverTP, _ := client.TransportParameters()
	logger.Info("client learned server transport params", "params", string(serverTP))

	var exported [32]byte
	if err := client.ExportKeyingMaterial([]byte("nucore-demo"), nil, exported[:]); err != nil {
		return err
	}
	logger.Info("exported keying material", "first_byte", exported[0])

	return nil
}

// runTab exercises a Tab's shm-cap lifecycle and its synchronous gfx-outputs
// query against a consoleHost, the Core B half of spec.md. Publish-shaped
// syscalls (title, accessibility tree, CPU present) take their payload from
// guest memory the guest wrote through its own acquired mapping; without a
// guest interpreter driving real memory writes, this demo only exercises the
// calls that need no guest-supplied payload — the full publish round trip,
// including RunDeferredTasks draining the result to a host, is covered
// end to end by tab_test.go (against StubTabContext) instead.
func runTab(logger *logging.Logger) error {
	host := &consoleHost{logger: logger, outputs: []deferred.Output{{Width: 1920, Height: 1080}}}
	tab := nucore.NewTabWithOptions(nucore.DefaultShmSpaceConfig(host), &nucore.Options{Logger: logger})

	shmID, err := tab.NewShmCap(capspace.FourKiB, 1)
	if err != nil {
		return err
	}
	if err := tab.AcquireShmCap(shmID, 0x1000, capspace.FlagRW); err != nil {
		return err
	}
	if err := tab.ReleaseShmCap(shmID); err != nil {
		return err
	}
	if err := tab.DestroyShmCap(shmID); err != nil {
		return err
	}
	logger.Info("shm cap lifecycle complete", "id", shmID)

	gfxCapID, err := tab.NewGfxCap()
	if err != nil {
		return err
	}
	outputID, err := tab.NewShmCap(capspace.FourKiB, 1)
	if err != nil {
		return err
	}
	if err := tab.GetOutputsBlocking(gfxCapID, outputID); err != nil {
		return err
	}
	logger.Info("gfx outputs query complete", "outputs", len(host.outputs))

	return tab.DestroyGfxCap(gfxCapID)
}
