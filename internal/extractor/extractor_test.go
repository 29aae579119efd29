package extractor

import (
	"archive/zip"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func writeDocx(t *testing.T, dir, name string, paragraphs ...string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create docx: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create(docxBodyPart)
	if err != nil {
		t.Fatalf("create body part: %v", err)
	}
	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, para := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">` + para + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)
	if _, err := w.Write([]byte(body.String())); err != nil {
		t.Fatalf("write body: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return p
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestExtract_TxtAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	txt := writeFile(t, dir, "notes.txt", "Mitochondria   are the\r\npowerhouse of the cell.")
	csv := writeFile(t, dir, "grades.csv", "a,b,c")

	ex := New(Options{Concurrency: 2, RemoveExtracted: true}, zerolog.Nop())
	batch, err := ex.Extract(context.Background(), []Source{{Path: txt}, {Path: csv}}, "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if want := "Mitochondria are the\npowerhouse of the cell."; batch.Text != want {
		t.Errorf("Text = %q, want %q", batch.Text, want)
	}
	if len(batch.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(batch.Results))
	}
	if batch.Results[0].Status != StatusOK || !batch.Results[0].Removed {
		t.Errorf("txt result = %+v, want ok and removed", batch.Results[0])
	}

	failures := batch.Failures()
	if len(failures) != 1 || failures[0].File != "grades.csv" || failures[0].Status != StatusSkipped {
		t.Fatalf("failures = %+v, want grades.csv skipped", failures)
	}
	if !strings.Contains(failures[0].Reason, "unsupported extension") {
		t.Errorf("reason = %q", failures[0].Reason)
	}

	if exists(txt) {
		t.Error("extracted txt should have been removed")
	}
	if !exists(csv) {
		t.Error("skipped csv should be left in place")
	}
}

func TestExtract_PreservesUploadOrderAndAppendsPastedText(t *testing.T) {
	dir := t.TempDir()
	var sources []Source
	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		sources = append(sources, Source{Path: writeFile(t, dir, name, "text of "+name), Name: name})
	}

	ex := New(Options{Concurrency: 3}, zerolog.Nop())
	batch, err := ex.Extract(context.Background(), sources, "  pasted\n\n\n\nnotes ")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := "text of c.txt\n\ntext of a.txt\n\ntext of b.txt\n\npasted\n\nnotes"
	if batch.Text != want {
		t.Errorf("Text = %q, want %q", batch.Text, want)
	}
	if Normalize(batch.Text) != batch.Text {
		t.Error("aggregate text should already be normalized")
	}
	for _, s := range sources {
		if !exists(s.Path) {
			t.Errorf("%s removed although RemoveExtracted is false", s.Name)
		}
	}
}

func TestExtract_FailedFileKeptAndReported(t *testing.T) {
	dir := t.TempDir()
	good := writeDocx(t, dir, "lecture.docx", "First paragraph.", "Second   paragraph.")
	broken := writeFile(t, dir, "broken.docx", "this is not a zip archive")
	empty := writeFile(t, dir, "empty.txt", "   \n\n  ")
	latin1 := writeFile(t, dir, "latin1.txt", "caf\xe9")

	ex := New(Options{Concurrency: 1, RemoveExtracted: true}, zerolog.Nop())
	batch, err := ex.Extract(context.Background(),
		[]Source{{Path: broken}, {Path: good}, {Path: empty}, {Path: latin1}}, "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if want := "First paragraph.\nSecond paragraph."; batch.Text != want {
		t.Errorf("Text = %q, want %q", batch.Text, want)
	}

	statuses := []Status{StatusFailed, StatusOK, StatusFailed, StatusFailed}
	for i, want := range statuses {
		if got := batch.Results[i].Status; got != want {
			t.Errorf("result %d status = %s, want %s", i, got, want)
		}
	}
	if !strings.Contains(batch.Results[2].Reason, ErrNoText.Error()) {
		t.Errorf("empty file reason = %q", batch.Results[2].Reason)
	}
	if !strings.Contains(batch.Results[3].Reason, "encoding") {
		t.Errorf("latin1 file reason = %q", batch.Results[3].Reason)
	}

	if exists(good) {
		t.Error("extracted docx should have been removed")
	}
	for _, p := range []string{broken, empty, latin1} {
		if !exists(p) {
			t.Errorf("%s should be left in place for diagnosis", filepath.Base(p))
		}
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.txt", "hello")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := New(Options{Concurrency: 1, RemoveExtracted: true}, zerolog.Nop())
	if _, err := ex.Extract(ctx, []Source{{Path: p}}, ""); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !exists(p) {
		t.Error("file removed despite cancellation")
	}
}

func TestReadText_UTF16WithBOM(t *testing.T) {
	dir := t.TempDir()
	// "Hi" in UTF-16LE with BOM.
	p := writeFile(t, dir, "u16.txt", "\xff\xfeH\x00i\x00")
	got, err := readText(p)
	if err != nil {
		t.Fatalf("readText: %v", err)
	}
	if got != "Hi" {
		t.Errorf("readText = %q, want %q", got, "Hi")
	}
}

func TestSupported(t *testing.T) {
	for name, want := range map[string]bool{
		"a.PDF": true, "b.docx": true, "c.doc": true, "d.txt": true,
		"e.csv": false, "noext": false,
	} {
		if got := Supported(name); got != want {
			t.Errorf("Supported(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestPieceText(t *testing.T) {
	word := make([]byte, 0x300)
	copy(word[0x100:], "Hello ")
	// UTF-16LE "Wörld" at 0x200.
	for i, r := range []uint16{'W', 0x00f6, 'r', 'l', 'd'} {
		binary.LittleEndian.PutUint16(word[0x200+2*i:], r)
	}

	// Two pieces: 6 compressed characters, then 5 UTF-16 characters.
	plc := make([]byte, 0, 4*3+8*2)
	for _, cp := range []uint32{0, 6, 11} {
		plc = binary.LittleEndian.AppendUint32(plc, cp)
	}
	plc = append(plc, 0, 0)
	plc = binary.LittleEndian.AppendUint32(plc, 0x100*2|fcCompressed)
	plc = append(plc, 0, 0, 0, 0)
	plc = binary.LittleEndian.AppendUint32(plc, 0x200)
	plc = append(plc, 0, 0)

	clx := []byte{0x01, 0x02, 0x00, 0xAA, 0xBB} // one Prc to skip
	clx = append(clx, 0x02)
	clx = binary.LittleEndian.AppendUint32(clx, uint32(len(plc)))
	clx = append(clx, plc...)

	got, err := pieceText(word, clx)
	if err != nil {
		t.Fatalf("pieceText: %v", err)
	}
	if want := "Hello Wörld"; got != want {
		t.Errorf("pieceText = %q, want %q", got, want)
	}
}

func TestCleanWordControls(t *testing.T) {
	in := "Title\rBody\x07cell \x13 HYPERLINK \"x\" \x14link text\x15 end\x01"
	want := "Title\nBody\tcell link text end"
	if got := cleanWordControls(in); got != want {
		t.Errorf("cleanWordControls = %q, want %q", got, want)
	}
}
