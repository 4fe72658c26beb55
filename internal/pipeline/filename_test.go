package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"report.docx", "report.docx"},
		{"My cool movie.mov", "My_cool_movie.mov"},
		{"../../../etc/passwd", "etc_passwd"},
		{`C:\Users\me\scan 1.png`, "C_Users_me_scan_1.png"},
		{"i contain cool ümläuts.txt", "i_contain_cool_umlauts.txt"},
		{"résumé.pdf", "resume.pdf"},
		{"ﬁle.txt", "file.txt"},
		{"__init__.py", "init__.py"},
		{"a<b>c?.html", "abc.html"},
		{"  spaced \t name .txt ", "spaced_name_.txt"},
		{"...", "upload"},
		{"漢字", "upload"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), tt.in)
	}
}
