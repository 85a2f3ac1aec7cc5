package preview

import (
	"strings"
	"testing"

	"vox-chat/internal/domain"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		html string
		want *domain.LinkPreview
	}{
		{
			name: "og tags",
			html: `<html><head>
				<title>Fallback</title>
				<meta property="og:title" content="Release notes">
				<meta property="og:description" content="What changed">
				<meta property="og:image" content="https://cdn.example.com/a.png">
			</head><body></body></html>`,
			want: &domain.LinkPreview{
				URL:         "https://example.com/post",
				Title:       "Release notes",
				Description: "What changed",
				Image:       "https://cdn.example.com/a.png",
			},
		},
		{
			name: "title fallback",
			html: `<html><head><title>  Plain page </title></head><body>hi</body></html>`,
			want: &domain.LinkPreview{URL: "https://example.com/post", Title: "Plain page"},
		},
		{
			name: "relative image",
			html: `<head><meta property="og:title" content="T"><meta property="og:image" content="/img/cover.jpg"></head>`,
			want: &domain.LinkPreview{URL: "https://example.com/post", Title: "T", Image: "https://example.com/img/cover.jpg"},
		},
		{
			name: "first og:title wins",
			html: `<head><meta property="og:title" content="One"><meta property="og:title" content="Two"></head>`,
			want: &domain.LinkPreview{URL: "https://example.com/post", Title: "One"},
		},
		{
			name: "no title",
			html: `<html><head><meta property="og:description" content="orphan"></head><body><h1>x</h1></body></html>`,
			want: nil,
		},
		{
			name: "empty document",
			html: ``,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse("https://example.com/post", strings.NewReader(tt.html))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() (-want +got):\n%s", diff)
			}
		})
	}
}
