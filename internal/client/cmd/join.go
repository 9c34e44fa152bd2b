package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rudransh-shrivastava/peer-room/internal/config"
	"github.com/rudransh-shrivastava/peer-room/internal/db"
	"github.com/rudransh-shrivastava/peer-room/internal/errs"
	"github.com/rudransh-shrivastava/peer-room/internal/protocol"
	"github.com/rudransh-shrivastava/peer-room/internal/session"
	"github.com/rudransh-shrivastava/peer-room/internal/status"
	"github.com/rudransh-shrivastava/peer-room/internal/store"
	"github.com/rudransh-shrivastava/peer-room/internal/transfer"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

const historyLimit = 50

type command int

const (
	cmdChat command = iota
	cmdCall
	cmdSend
	cmdHistory
	cmdClear
	cmdLeave
	cmdHelp
	cmdUnknown
)

// parseLine splits an input line into a command and its argument. Lines
// that do not start with a slash are chat.
func parseLine(line string) (command, string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return cmdChat, line
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "call":
		return cmdCall, ""
	case "send":
		return cmdSend, arg
	case "history":
		return cmdHistory, ""
	case "clear":
		return cmdClear, ""
	case "leave", "quit":
		return cmdLeave, ""
	case "help":
		return cmdHelp, ""
	default:
		return cmdUnknown, name
	}
}

type room struct {
	id       string
	cfg      *config.Config
	log      *logrus.Logger
	sess     *session.Session
	messages store.MessageRepository
	files    store.FileRepository
	out      io.Writer
	bars     map[string]*progressbar.ProgressBar
}

func (r *room) run(ctx context.Context, in io.Reader) error {
	if err := r.sess.Connect(ctx, r.id); err != nil {
		return fmt.Errorf("joining room %s: %w", r.id, err)
	}
	fmt.Fprintf(r.out, "Joined room %s. Type /help for commands.\n", r.id)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return r.sess.Leave()

		case line, ok := <-lines:
			if !ok {
				return r.sess.Leave()
			}
			if done := r.handleLine(ctx, line); done {
				return r.sess.Leave()
			}

		case st, ok := <-r.sess.Status():
			if !ok {
				return nil
			}
			r.onStatus(st)

		case msg, ok := <-r.sess.Messages():
			if ok {
				r.onMessage(ctx, msg)
			}

		case f, ok := <-r.sess.Files():
			if ok {
				r.onFile(ctx, f)
			}

		case p, ok := <-r.sess.Progress():
			if ok {
				r.onProgress(p)
			}

		case err, ok := <-r.sess.Errors():
			if ok {
				fmt.Fprintf(r.out, "! %v\n", err)
			}
		}
	}
}

// handleLine executes one input line and reports whether the user left.
func (r *room) handleLine(ctx context.Context, line string) bool {
	cmd, arg := parseLine(line)
	switch cmd {
	case cmdChat:
		if arg == "" {
			return false
		}
		payload := chatPayload(arg)
		if err := r.sess.SendText(payload); err != nil {
			r.sendFailed(err)
			return false
		}
		raw, _ := json.Marshal(payload)
		r.record(ctx, transfer.ChatEntry{Sender: transfer.Local, Text: arg, Raw: raw})

	case cmdCall:
		if err := r.sess.Initiate(); err != nil {
			fmt.Fprintf(r.out, "! cannot call: %v\n", err)
		}

	case cmdSend:
		if arg == "" {
			fmt.Fprintln(r.out, "usage: /send <path>")
			return false
		}
		r.sendFile(ctx, arg)

	case cmdHistory:
		r.printHistory(ctx)

	case cmdClear:
		if err := r.messages.DeleteRoom(ctx, r.id); err != nil {
			fmt.Fprintf(r.out, "! %v\n", err)
			return false
		}
		fmt.Fprintln(r.out, "* history cleared")

	case cmdLeave:
		return true

	case cmdHelp:
		fmt.Fprintln(r.out, "/call  /send <path>  /history  /clear  /leave")

	case cmdUnknown:
		fmt.Fprintf(r.out, "unknown command /%s\n", arg)
	}
	return false
}

// chatPayload wraps typed text in an object so the receiver reads it as
// text even when it looks like JSON.
func chatPayload(text string) any {
	return map[string]string{"text": text}
}

func (r *room) sendFailed(err error) {
	if errors.Is(err, errs.ErrSendDropped) {
		fmt.Fprintln(r.out, "! not connected yet, use /call or wait for the other peer")
		return
	}
	fmt.Fprintf(r.out, "! send failed: %v\n", err)
}

func (r *room) sendFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(r.out, "! %v\n", err)
		return
	}

	name := protocol.ExtractFileName(path)
	mimeType := protocol.MimeTypeFor(path)
	if err := r.sess.SendFile(data, name, mimeType); err != nil {
		r.sendFailed(err)
		return
	}

	checksum, err := protocol.HashFile(bytes.NewReader(data))
	if err != nil {
		r.log.Warnf("Failed to hash %s: %v", name, err)
	}
	if _, err := r.files.CreateFile(ctx, r.id, "outbound", name, mimeType, int64(len(data)), checksum, path); err != nil {
		r.log.Warnf("Failed to record sent file: %v", err)
	}
}

func (r *room) onStatus(st status.Status) {
	fmt.Fprintf(r.out, "* %s\n", st)
}

func (r *room) onMessage(ctx context.Context, msg transfer.ChatEntry) {
	fmt.Fprintf(r.out, "peer: %s\n", msg.Text)
	r.record(ctx, msg)
}

func (r *room) record(ctx context.Context, msg transfer.ChatEntry) {
	if _, err := r.messages.CreateMessage(ctx, r.id, msg.Sender.String(), msg.Text, string(msg.Raw)); err != nil {
		r.log.Warnf("Failed to record message: %v", err)
	}
}

func (r *room) onFile(ctx context.Context, f transfer.File) {
	checksum, err := protocol.HashFile(bytes.NewReader(f.Data))
	if err != nil {
		r.log.Warnf("Failed to hash %s: %v", f.Name, err)
	}
	if prev, ok := r.alreadyReceived(ctx, checksum); ok {
		fmt.Fprintf(r.out, "* received %s again, same as %s\n", f.Name, prev.Path)
		return
	}

	path := protocol.BuildDownloadPath(r.cfg.Transfer.DownloadDir, r.id, f.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(r.out, "! cannot save %s: %v\n", f.Name, err)
		return
	}
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		fmt.Fprintf(r.out, "! cannot save %s: %v\n", f.Name, err)
		return
	}

	r.log.WithField("sha256", checksum).Infof("Saved %s to %s", f.Name, path)
	fmt.Fprintf(r.out, "* received %s (%d bytes) -> %s\n", f.Name, len(f.Data), path)

	if _, err := r.files.CreateFile(ctx, r.id, "inbound", f.Name, f.MimeType, int64(len(f.Data)), checksum, path); err != nil {
		r.log.Warnf("Failed to record received file: %v", err)
	}
}

// alreadyReceived finds an earlier copy of the same content, sent or
// received, that is still on disk.
func (r *room) alreadyReceived(ctx context.Context, checksum string) (db.FileRecord, bool) {
	if checksum == "" {
		return db.FileRecord{}, false
	}
	prev, err := r.files.GetFileByChecksum(ctx, r.id, checksum)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.log.Warnf("Failed to look up %s: %v", checksum, err)
		}
		return db.FileRecord{}, false
	}
	if _, err := os.Stat(prev.Path); err != nil {
		return db.FileRecord{}, false
	}
	return prev, true
}

func (r *room) onProgress(p transfer.Progress) {
	if p.Total == 0 {
		return
	}
	if r.bars == nil {
		r.bars = make(map[string]*progressbar.ProgressBar)
	}

	key := p.Direction.String() + "/" + p.Name
	bar, ok := r.bars[key]
	if !ok {
		bar = progressbar.NewOptions64(p.Total,
			progressbar.OptionSetWriter(r.out),
			progressbar.OptionSetDescription(fmt.Sprintf("%s %s", p.Direction, p.Name)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		r.bars[key] = bar
	}

	_ = bar.Set64(p.Done)
	if p.Done >= p.Total {
		_ = bar.Finish()
		delete(r.bars, key)
	}
}

func (r *room) printHistory(ctx context.Context) {
	msgs, err := r.messages.GetMessages(ctx, r.id, historyLimit)
	if err != nil {
		fmt.Fprintf(r.out, "! %v\n", err)
		return
	}
	files, err := r.files.GetFiles(ctx, r.id)
	if err != nil {
		fmt.Fprintf(r.out, "! %v\n", err)
		return
	}

	if len(msgs) == 0 && len(files) == 0 {
		fmt.Fprintln(r.out, "no history yet")
		return
	}
	for _, m := range msgs {
		fmt.Fprintf(r.out, "%s: %s\n", m.Sender, m.Text)
	}
	for _, f := range files {
		fmt.Fprintf(r.out, "[%s] %s (%d bytes) %s\n", f.Direction, f.Name, f.Size, f.Checksum)
	}
}
