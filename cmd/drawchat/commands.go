package main

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gosuda/drawchat/canvas"
	"github.com/gosuda/drawchat/prefs"
	"github.com/gosuda/drawchat/raster"
	"github.com/gosuda/drawchat/session"
)

var errNoImage = errors.New("drawing surface cannot be exported")

var errUsage = errors.New("usage")

const helpText = `commands:
  <text>                  send a message
  /reply <id> <text>      reply to a message
  /delete <id>            delete your message
  /react <id> <emoji>     toggle a reaction
  /older                  load older messages
  /bottom                 jump to the newest message
  /avatar <url>           set your avatar
  /side both|left         message alignment
  /screen narrow|wide     compact or detailed rows
  /canvas-new [title]     create a drawing room and invite everyone here
  /accept <id>            accept the invite in message <id>
  /open <canvas-id>       enter a drawing room
  /close                  leave the drawing room
  /draw x,y x,y ...       draw a stroke through surface points
  /color <css color>      stroke color
  /width <n>              stroke width
  /eraser on|off          erase instead of paint
  /undo, /redo            undo or redo your last stroke
  /perm <user-id> on|off  grant or revoke drawing (owner only)
  /save <file.png>        write the drawing to a PNG file
  /quit                   leave
`

type shell struct {
	sess  *session.Session
	prefs *prefs.Store
	out   *renderer
}

// exec runs one input line and reports whether the client should quit.
func (sh *shell) exec(line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, sh.sess.Send(line, 0)
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "quit", "exit":
		return true, nil
	case "help":
		sh.out.Printf("%s", helpText)
		return false, nil
	case "reply":
		idArg, text, _ := strings.Cut(rest, " ")
		id, err := parseID(idArg)
		if err != nil {
			return false, err
		}
		return false, sh.sess.Send(text, id)
	case "delete":
		id, err := parseID(rest)
		if err != nil {
			return false, err
		}
		return false, sh.sess.Delete(id)
	case "react":
		idArg, emoji, _ := strings.Cut(rest, " ")
		id, err := parseID(idArg)
		if err != nil {
			return false, err
		}
		return false, sh.sess.ToggleReaction(id, strings.TrimSpace(emoji))
	case "older":
		sent, err := sh.sess.LoadOlder()
		if err == nil && !sent {
			sh.out.Printf("-- no older messages to load\n")
		}
		return false, err
	case "bottom":
		return false, sh.sess.JumpToBottom()
	case "avatar":
		return false, sh.sess.UpdateAvatar(rest)
	case "side":
		return false, sh.prefs.Set(prefs.KeySide, rest)
	case "screen":
		return false, sh.prefs.Set(prefs.KeyScreen, rest)
	case "canvas-new":
		return false, sh.sess.CreateCanvasRoom(rest, nil)
	case "accept":
		id, err := parseID(rest)
		if err != nil {
			return false, err
		}
		return false, sh.sess.AcceptInvite(id)
	case "open":
		return false, sh.sess.OpenCanvas(rest)
	case "close":
		return false, sh.sess.CloseCanvas()
	case "draw":
		pts, err := parsePath(rest)
		if err != nil {
			return false, err
		}
		return false, sh.sess.Canvas(func(e *canvas.Engine) error { return drawPath(e, pts) })
	case "color", "width", "eraser":
		return false, sh.sess.Canvas(func(e *canvas.Engine) error {
			st, err := restyle(e.Style(), name, rest)
			if err != nil {
				return err
			}
			e.SetStyle(st)
			return nil
		})
	case "undo":
		return false, sh.sess.Canvas(func(e *canvas.Engine) error {
			if !e.Undo() {
				return errors.New("nothing to undo")
			}
			return nil
		})
	case "redo":
		return false, sh.sess.Canvas(func(e *canvas.Engine) error {
			if !e.Redo() {
				return errors.New("nothing to redo")
			}
			return nil
		})
	case "perm":
		idArg, mode, _ := strings.Cut(rest, " ")
		id, err := parseID(idArg)
		if err != nil {
			return false, err
		}
		on, err := parseSwitch(mode)
		if err != nil {
			return false, err
		}
		return false, sh.sess.Canvas(func(e *canvas.Engine) error { return e.SetPermission(id, on) })
	case "save":
		return false, sh.save(rest)
	default:
		return false, fmt.Errorf("unknown command /%s (try /help)", name)
	}
}

func (sh *shell) save(path string) error {
	if path == "" {
		return fmt.Errorf("%w: /save <file.png>", errUsage)
	}
	var buf bytes.Buffer
	if err := sh.sess.Canvas(func(e *canvas.Engine) error { return encodePNG(&buf, e) }); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	sh.out.Printf("-- saved %s\n", path)
	return nil
}

// encodePNG writes the engine's surface; it must run on the session loop.
func encodePNG(w io.Writer, e *canvas.Engine) error {
	src, ok := e.Surface().(interface{ Image() *image.RGBA })
	if !ok {
		return errNoImage
	}
	return png.Encode(w, src.Image())
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: message id, got %q", errUsage, raw)
	}
	return id, nil
}

func parseSwitch(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "yes", "true":
		return true, nil
	case "off", "no", "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: expected on or off, got %q", errUsage, raw)
}

// parsePath reads "x,y x,y ..." surface coordinates.
func parsePath(raw string) ([]canvas.Pos, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: /draw x,y x,y ...", errUsage)
	}
	out := make([]canvas.Pos, 0, len(fields))
	for _, f := range fields {
		xs, ys, ok := strings.Cut(f, ",")
		if !ok {
			return nil, fmt.Errorf("%w: bad point %q", errUsage, f)
		}
		x, errX := strconv.ParseFloat(xs, 64)
		y, errY := strconv.ParseFloat(ys, 64)
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("%w: bad point %q", errUsage, f)
		}
		out = append(out, canvas.Pos{X: x, Y: y})
	}
	return out, nil
}

func drawPath(e *canvas.Engine, pts []canvas.Pos) error {
	if !e.PointerDown(pts[0].X, pts[0].Y) {
		return errors.New("drawing is not permitted here")
	}
	for _, p := range pts[1:] {
		e.PointerMove(p.X, p.Y)
	}
	e.PointerUp()
	return nil
}

func restyle(st canvas.Style, name, arg string) (canvas.Style, error) {
	switch name {
	case "color":
		if _, err := raster.ParseColor(arg); err != nil {
			return st, err
		}
		st.Color = arg
	case "width":
		w, err := strconv.ParseFloat(arg, 64)
		if err != nil || w <= 0 {
			return st, fmt.Errorf("%w: width must be a positive number", errUsage)
		}
		st.Width = w
	case "eraser":
		on, err := parseSwitch(arg)
		if err != nil {
			return st, err
		}
		st.Composite = canvas.CompositeSourceOver
		if on {
			st.Composite = canvas.CompositeDestinationOut
		}
	}
	return st, nil
}
