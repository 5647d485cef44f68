// Command mgstool is a small CLI over the mgs library: encode, decode,
// combine, and sort-benchmark, in the same thin-main style as the
// teacher's ggdemo.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"math/rand"
	"os"

	"golang.org/x/image/draw"

	"github.com/google/uuid"

	mgs "github.com/splatsdotcom/mgs-go"
	"github.com/splatsdotcom/mgs-go/internal/mat"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "encode":
		err = cmdEncode(os.Args[2:])
	case "decode":
		err = cmdDecode(os.Args[2:])
	case "combine":
		err = cmdCombine(os.Args[2:])
	case "sort":
		err = cmdSort(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mgstool <encode|decode|combine|sort> [flags]")
}

// cmdEncode synthesizes a procedural Gaussian set (there is no .ply loader
// in scope; see the library's documented Non-goals) and packs+writes it,
// analogous to ggdemo's procedurally drawn shapes standing in for a real
// asset pipeline.
func cmdEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	n := fs.Int("n", 1000, "number of Gaussians to synthesize")
	shDegree := fs.Int("shdegree", 1, "spherical harmonic degree (0-3)")
	dynamic := fs.Bool("dynamic", false, "include velocity/tMean/tStdev fields")
	out := fs.String("out", "scene.mgs", "output container path")
	seed := fs.Int64("seed", 1, "rng seed, for reproducible demo scenes")
	fs.Parse(args)

	fg := synthesizeScene(*n, *shDegree, *dynamic, *seed)
	pg, perr := mgs.Pack(fg)
	if perr != nil {
		return perr
	}
	if err := mgs.Encode(*pg, mgs.Metadata{}, *out); err != nil {
		return err
	}
	log.Printf("encoded %d Gaussians (shDegree=%d, dynamic=%v) to %s", *n, *shDegree, *dynamic, *out)
	return nil
}

func synthesizeScene(n, shDegree int, dynamic bool, seed int64) mgs.FloatGaussians {
	rng := rand.New(rand.NewSource(seed))
	stride := (shDegree + 1) * (shDegree + 1)

	fg := mgs.FloatGaussians{
		N:         n,
		ShDegree:  shDegree,
		Dynamic:   dynamic,
		Means:     make([]mat.Vec3, n),
		Scales:    make([]mat.Vec3, n),
		Rotations: make([]mat.Quat, n),
		Opacities: make([]float32, n),
		SH:        make([]mat.Vec3, n*stride),
	}
	if dynamic {
		fg.Velocities = make([]mat.Vec3, n)
		fg.TMeans = make([]float32, n)
		fg.TStdevs = make([]float32, n)
	}
	for i := 0; i < n; i++ {
		fg.Means[i] = mat.Vec3{X: rng.Float32()*10 - 5, Y: rng.Float32()*10 - 5, Z: rng.Float32()*-10 - 1}
		fg.Scales[i] = mat.Vec3{X: rng.Float32()*0.2 + 0.01, Y: rng.Float32()*0.2 + 0.01, Z: rng.Float32()*0.2 + 0.01}
		fg.Rotations[i] = mat.Quat{W: 1}
		fg.Opacities[i] = rng.Float32()
		for k := 0; k < stride; k++ {
			fg.SH[i*stride+k] = mat.Vec3{X: rng.Float32(), Y: rng.Float32(), Z: rng.Float32()}
		}
		if dynamic {
			fg.Velocities[i] = mat.Vec3{X: rng.Float32() - 0.5, Y: rng.Float32() - 0.5, Z: rng.Float32() - 0.5}
			fg.TMeans[i] = rng.Float32()
			fg.TStdevs[i] = rng.Float32() * 0.1
		}
	}
	return fg
}

func cmdDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	in := fs.String("in", "scene.mgs", "input container path")
	fs.Parse(args)

	pg, md, err := mgs.Decode(*in)
	if err != nil {
		return err
	}
	fmt.Printf("N=%d shDegree=%d dynamic=%v duration=%v sceneID=%v\n", pg.N, pg.ShDegree, pg.Dynamic, md.Duration, md.SceneID)
	return nil
}

func cmdCombine(args []string) error {
	fs := flag.NewFlagSet("combine", flag.ExitOnError)
	aPath := fs.String("a", "", "first input container path")
	bPath := fs.String("b", "", "second input container path")
	out := fs.String("out", "combined.mgs", "output container path")
	fs.Parse(args)

	if *aPath == "" || *bPath == "" {
		return fmt.Errorf("combine: -a and -b are required")
	}

	a, aMd, err := mgs.Decode(*aPath)
	if err != nil {
		return err
	}
	b, bMd, err := mgs.Decode(*bPath)
	if err != nil {
		return err
	}
	c, cerr := mgs.Combine(*a, *b)
	if cerr != nil {
		return cerr
	}
	var id uuid.UUID
	switch {
	case aMd.SceneID != nil:
		id = *aMd.SceneID
	case bMd.SceneID != nil:
		id = *bMd.SceneID
	default:
		id = uuid.New()
	}
	if err := mgs.Encode(*c, mgs.Metadata{SceneID: &id}, *out); err != nil {
		return err
	}
	log.Printf("combined %d + %d -> %d Gaussians, sceneID=%s, written to %s", a.N, b.N, c.N, id, *out)
	return nil
}

func cmdSort(args []string) error {
	fs := flag.NewFlagSet("sort", flag.ExitOnError)
	in := fs.String("in", "scene.mgs", "input container path")
	t := fs.Float64("time", 0, "sample time for dynamic sets")
	debugDepthPNG := fs.String("debug-depth-png", "", "if set, write a grayscale depth-order strip here")
	fs.Parse(args)

	pg, _, err := mgs.Decode(*in)
	if err != nil {
		return err
	}

	sorter, serr := mgs.NewSorter(pg)
	if serr != nil {
		return serr
	}
	defer sorter.Close()

	indices, serr := sorter.Sort(mat.Identity4(), mat.Identity4(), float32(*t))
	if serr != nil {
		return serr
	}
	log.Printf("sorted %d/%d visible Gaussians", len(indices), pg.N)

	if *debugDepthPNG != "" {
		return writeDepthStrip(*debugDepthPNG, len(indices), pg.N)
	}
	return nil
}

// writeDepthStrip renders a 1-row grayscale strip where pixel i's
// brightness encodes rank i/visible in the back-to-front order, then
// upscales it with x/image/draw's CatmullRom interpolator (the high-
// quality scaler stdlib's image/draw doesn't provide) into a viewable
// preview image.
func writeDepthStrip(path string, visible, total int) error {
	if visible == 0 {
		visible = 1
	}
	src := image.NewGray(image.Rect(0, 0, visible, 1))
	for i := 0; i < visible; i++ {
		v := uint8(255 * i / visible)
		src.SetGray(i, 0, color.Gray{Y: v})
	}

	dst := image.NewGray(image.Rect(0, 0, 512, 32))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("debug-depth-png: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, dst); err != nil {
		return fmt.Errorf("debug-depth-png: %w", err)
	}
	log.Printf("wrote depth strip (%d visible of %d) to %s", visible, total, path)
	return nil
}
