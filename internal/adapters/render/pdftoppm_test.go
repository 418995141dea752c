package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pitchjudge/pkg/logger"
)

// fakeExecutor pretends to be pdftoppm by writing page-N.png files next to the
// output prefix it is given.
type fakeExecutor struct {
	pages int
	width int // zero-pad width of page numbers
	err   error
	calls [][]string
	onLP  error
}

func (f *fakeExecutor) LookPath(file string) (string, error) {
	if f.onLP != nil {
		return "", f.onLP
	}
	return "/usr/bin/" + file, nil
}

func (f *fakeExecutor) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return []byte("Syntax Error: Couldn't read xref table"), f.err
	}
	prefix := args[len(args)-1]
	for i := 1; i <= f.pages; i++ {
		name := fmt.Sprintf("%s-%0*d.png", prefix, f.width, i)
		if err := os.WriteFile(name, []byte(fmt.Sprintf("page %d", i)), 0o600); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func writeDoc(dir string) string {
	doc := filepath.Join(dir, "deck.pdf")
	So(os.WriteFile(doc, []byte("%PDF-1.4"), 0o600), ShouldBeNil)
	return doc
}

func TestRender(t *testing.T) {
	Convey("Given a pdftoppm renderer", t, func() {
		_ = logger.Init()
		dir := t.TempDir()
		out := filepath.Join(dir, "slides")
		fake := &fakeExecutor{pages: 12, width: 2}
		r := New(withExecutor(fake), WithDPI(150))

		Convey("Render converts every page in order", func() {
			slides, err := r.Render(context.Background(), writeDoc(dir), out)
			So(err, ShouldBeNil)
			So(slides, ShouldHaveLength, 12)
			So(filepath.Base(slides[0]), ShouldEqual, "slide_001.png")
			So(filepath.Base(slides[11]), ShouldEqual, "slide_012.png")

			first, err := os.ReadFile(slides[0])
			So(err, ShouldBeNil)
			So(string(first), ShouldEqual, "page 1")
			last, err := os.ReadFile(slides[11])
			So(err, ShouldBeNil)
			So(string(last), ShouldEqual, "page 12")

			Convey("And passes the resolution and width bound", func() {
				So(fake.calls, ShouldHaveLength, 1)
				So(fake.calls[0][:9], ShouldResemble, []string{
					"pdftoppm", "-r", "150", "-png", "-scale-to-x", "1920", "-scale-to-y", "-1",
					filepath.Join(dir, "deck.pdf"),
				})
			})

			Convey("And Slides lists the same files", func() {
				listed, err := r.Slides(out)
				So(err, ShouldBeNil)
				So(listed, ShouldResemble, slides)
			})

			Convey("And a second render replaces the earlier slides", func() {
				fake.pages = 3
				again, err := r.Render(context.Background(), writeDoc(dir), out)
				So(err, ShouldBeNil)
				So(again, ShouldHaveLength, 3)
				listed, err := r.Slides(out)
				So(err, ShouldBeNil)
				So(listed, ShouldHaveLength, 3)
			})
		})

		Convey("Unpadded page numbers still sort numerically", func() {
			fake.width = 0
			slides, err := r.Render(context.Background(), writeDoc(dir), out)
			So(err, ShouldBeNil)
			tenth, err := os.ReadFile(slides[9])
			So(err, ShouldBeNil)
			So(string(tenth), ShouldEqual, "page 10")
		})

		Convey("A document with no pages is an error", func() {
			fake.pages = 0
			_, err := r.Render(context.Background(), writeDoc(dir), out)
			So(errors.Is(err, ErrNoPages), ShouldBeTrue)
		})

		Convey("A failing command surfaces its output", func() {
			fake.err = errors.New("exit status 1")
			_, err := r.Render(context.Background(), writeDoc(dir), out)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "xref table")
		})

		Convey("A missing document fails before running the command", func() {
			_, err := r.Render(context.Background(), filepath.Join(dir, "missing.pdf"), out)
			So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
			So(fake.calls, ShouldBeEmpty)
		})

		Convey("Slides of a directory that was never rendered is empty", func() {
			slides, err := r.Slides(filepath.Join(dir, "nothing"))
			So(err, ShouldBeNil)
			So(slides, ShouldBeEmpty)
		})

		Convey("Available reports a missing binary", func() {
			So(r.Available(), ShouldBeNil)
			fake.onLP = errors.New("not found")
			So(errors.Is(r.Available(), ErrBinaryNotFound), ShouldBeTrue)
		})
	})
}
