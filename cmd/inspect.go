package cmd

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	_ "golang.org/x/image/webp"

	"github.com/toolchest/favikit/internal/favicon"
	"github.com/toolchest/favikit/internal/ico"
	"github.com/toolchest/favikit/internal/manifest"
	"github.com/toolchest/favikit/internal/packager"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <favicons.zip>",
	Short: "Display and validate the contents of a favicon archive",
	Long: `Lists every entry of a favicons.zip produced by generate or batch,
decodes icon dimensions and favicon.ico frames, and checks that each
manifest.json only references icons present in the archive with the
declared sizes.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

// archiveSet is one favicon set inside an archive: the root for single
// results, one directory per source for batches.
type archiveSet struct {
	Dir      string
	Files    []fileInfo
	Manifest *manifest.WebManifest
	Frames   []ico.Entry
}

type fileInfo struct {
	Name   string
	Size   int64
	Width  int
	Height int
}

func runInspect(c *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	sets, problems, err := inspectArchive(data)
	if err != nil {
		return err
	}
	printInspection(c, args[0], int64(len(data)), sets, problems)
	if len(problems) > 0 {
		return fmt.Errorf("validation failed with %d errors", len(problems))
	}
	return nil
}

// inspectArchive groups entries into sets and validates each one.
func inspectArchive(data []byte) ([]*archiveSet, []string, error) {
	entries, err := packager.Read(data)
	if err != nil {
		return nil, nil, err
	}
	if len(entries) == 0 {
		return nil, []string{"archive is empty"}, nil
	}

	byDir := map[string]*archiveSet{}
	var problems []string
	for _, e := range entries {
		dir, name := path.Split(e.Name)
		dir = strings.TrimSuffix(dir, "/")
		set, ok := byDir[dir]
		if !ok {
			set = &archiveSet{Dir: dir}
			byDir[dir] = set
		}
		fi := fileInfo{Name: name, Size: int64(len(e.Data))}

		switch {
		case name == favicon.ManifestName:
			m, err := manifest.Parse(e.Data)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", e.Name, err))
				break
			}
			set.Manifest = m
		case name == favicon.ICOName:
			frames, err := ico.Parse(e.Data)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", e.Name, err))
				break
			}
			set.Frames = frames
		case strings.HasSuffix(name, ".ico"):
			if _, err := ico.Parse(e.Data); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", e.Name, err))
			}
		default:
			cfg, _, err := image.DecodeConfig(bytes.NewReader(e.Data))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: undecodable image: %v", e.Name, err))
				break
			}
			fi.Width, fi.Height = cfg.Width, cfg.Height
		}
		set.Files = append(set.Files, fi)
	}

	sets := make([]*archiveSet, 0, len(byDir))
	for _, s := range byDir {
		sets = append(sets, s)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Dir < sets[j].Dir })
	for _, s := range sets {
		problems = append(problems, validateSet(s)...)
	}
	return sets, problems, nil
}

func validateSet(s *archiveSet) []string {
	var errs []string
	label := s.Dir
	if label == "" {
		label = "."
	}
	files := map[string]fileInfo{}
	for _, f := range s.Files {
		files[f.Name] = f
	}

	if m := s.Manifest; m != nil {
		if m.Name == "" {
			errs = append(errs, fmt.Sprintf("%s: manifest has no name", label))
		}
		for i, icon := range m.Icons {
			f, ok := files[strings.TrimPrefix(icon.Src, "/")]
			if !ok {
				errs = append(errs, fmt.Sprintf("%s: manifest icon[%d] %s not in archive", label, i, icon.Src))
				continue
			}
			if got := fmt.Sprintf("%dx%d", f.Width, f.Height); got != icon.Sizes {
				errs = append(errs, fmt.Sprintf("%s: manifest icon[%d] %s declares %s, image is %s", label, i, icon.Src, icon.Sizes, got))
			}
		}
	}

	seen := map[int]bool{}
	for _, fr := range s.Frames {
		if seen[fr.Width] {
			errs = append(errs, fmt.Sprintf("%s: favicon.ico has two %dpx frames", label, fr.Width))
		}
		seen[fr.Width] = true
	}
	return errs
}

func printInspection(c *cobra.Command, name string, size int64, sets []*archiveSet, problems []string) {
	w := c.OutOrStdout()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Archive:  %s (%s)\n", name, bytesOf(size))
	fmt.Fprintf(w, "  Sets:     %d\n", len(sets))
	fmt.Fprintln(w)

	for _, s := range sets {
		if s.Dir != "" {
			fmt.Fprintf(w, "  %s/\n", s.Dir)
		}
		for _, f := range s.Files {
			dims := ""
			if f.Width > 0 {
				dims = fmt.Sprintf("%dx%d", f.Width, f.Height)
			}
			fmt.Fprintf(w, "    %-34s %9s  %s\n", f.Name, dims, bytesOf(f.Size))
		}
		if len(s.Frames) > 0 {
			widths := make([]string, len(s.Frames))
			for i, fr := range s.Frames {
				widths[i] = fmt.Sprintf("%d", fr.Width)
			}
			fmt.Fprintf(w, "    favicon.ico frames: %s\n", strings.Join(widths, ", "))
		}
		if s.Manifest != nil {
			fmt.Fprintf(w, "    manifest: %q, %d icons, theme %s\n", s.Manifest.Name, len(s.Manifest.Icons), s.Manifest.ThemeColor)
		}
		fmt.Fprintln(w)
	}

	if len(problems) == 0 {
		fmt.Fprintln(w, "  ✓ Archive is valid")
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintf(w, "  ✗ Archive has %d error(s):\n", len(problems))
	for _, p := range problems {
		fmt.Fprintf(w, "    • %s\n", p)
	}
	fmt.Fprintln(w)
}
