package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"unicode/utf8"
)

const namePrompt = "Please enter your name:"

// ErrLineTooLong reports an inbound line past the configured cap. It ends
// the session like any other read error.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// ErrInvalidEncoding reports inbound bytes that are not valid UTF-8. It
// ends the session like any other read error.
var ErrInvalidEncoding = errors.New("line is not valid utf-8")

// RunSession drives one client connection from greeting to eviction. It
// returns once the read side of the stream is gone and the peer, if it
// was ever admitted, has been evicted. Cancelling ctx closes the
// connection, which routes every session through the same exit path.
func RunSession(ctx context.Context, conn net.Conn, fabric Fabric, cfg Config, logger *slog.Logger) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	defer conn.Close()

	id := conn.RemoteAddr().String()
	logger = logger.With("peer", id)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	reader := bufio.NewReader(conn)

	if err := writeLine(conn, namePrompt); err != nil {
		logger.Warn("failed to send name prompt", "error", err)
		return
	}

	name, err := readLine(reader, cfg.MaxLineLen)
	if err != nil || strings.TrimSpace(name) == "" {
		// Never admitted: no join, no leave, close silently.
		return
	}
	name = strings.TrimSpace(name)

	h, err := fabric.Admit(id, name)
	if err != nil {
		logger.Error("admission failed", "name", name, "error", err)
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		runWriter(conn, h, id, logger)
	}()

	for {
		line, err := readLine(reader, cfg.MaxLineLen)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("read failed", "name", name, "error", err)
			}
			break
		}
		if line == "" {
			logger.Warn("ignoring empty line", "name", name)
			continue
		}
		fabric.Publish(id, NewChat(id, name, line))
	}

	// The reader ending is the one eviction trigger; a dead writer on
	// its own leaves the peer admitted. Eviction closes the endpoint,
	// which lets the writer drain the farewell and exit.
	fabric.Evict(id)
	<-writerDone
}

// runWriter drains the receive handle onto the wire, applying the
// per-recipient rendering rules. A write failure stops the writer but
// deliberately does not evict the peer.
func runWriter(conn net.Conn, h *Handle, self string, logger *slog.Logger) {
	w := bufio.NewWriter(conn)
	for msg := range h.C() {
		if n := h.TakeLagged(); n > 0 {
			logger.Warn("delivery lagged, messages dropped", "count", n)
		}

		line, last := renderFor(msg, self)
		if line != "" {
			if _, err := w.WriteString(line + "\n"); err != nil {
				logger.Warn("write failed", "error", err)
				return
			}
			if err := w.Flush(); err != nil {
				logger.Warn("write failed", "error", err)
				return
			}
		}
		if last {
			return
		}
	}
}

// renderFor applies the recipient-side rules: the peer's own join is its
// welcome, its own leave is the farewell and the end of the stream, and
// its own chat is never echoed back. Identity is the origin peer id, so
// duplicate display names stay distinct.
func renderFor(msg *Message, self string) (line string, last bool) {
	if msg.Origin != self {
		return msg.Render(), false
	}
	switch msg.Kind {
	case KindJoin:
		return "Welcome " + msg.Name + "!", false
	case KindLeave:
		return "Bye!", true
	default:
		return "", false
	}
}

// readLine reads one LF-terminated line of at most max bytes, with CR
// stripped. A final unterminated line before EOF still counts.
func readLine(r *bufio.Reader, max int) (string, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > max {
			return "", ErrLineTooLong
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return "", io.EOF
			}
			break
		}
		return "", fmt.Errorf("read: %w", err)
	}
	if !utf8.Valid(line) {
		return "", ErrInvalidEncoding
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

func writeLine(w io.Writer, line string) error {
	_, err := io.WriteString(w, line+"\n")
	return err
}
