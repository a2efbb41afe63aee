package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/graphsnap-go/application"
	"github.com/lk2023060901/graphsnap-go/internal/compressor"
	"github.com/lk2023060901/graphsnap-go/internal/json"
	"github.com/lk2023060901/graphsnap-go/pkg/log"
	"github.com/lk2023060901/graphsnap-go/pkg/snapshot"
	"github.com/lk2023060901/graphsnap-go/pkg/snapshot/codec"
	"github.com/lk2023060901/graphsnap-go/pkg/util/hardware"
	"github.com/lk2023060901/graphsnap-go/pkg/util/typeutil"
)

type env struct {
	app    *application.Application
	stdout io.Writer
	stderr io.Writer
}

type command func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{
	"inspect":  inspectCmd,
	"convert":  convertCmd,
	"validate": validateCmd,
}

// exitError 让命令指定进程退出码。
type exitError struct {
	code int
	msg  string
}

func (e exitError) Error() string { return e.msg }

// resolveCodec 解析形如 json 或 cbor+zstd 的编码名，返回的 release 用于释放压缩器。
func resolveCodec(name string) (codec.Codec, func(), error) {
	reg, err := codec.NewRegistry()
	if err != nil {
		return nil, nil, err
	}
	base, compression, _ := strings.Cut(name, "+")
	c, err := reg.Get(base)
	if err != nil {
		return nil, nil, err
	}
	switch compression {
	case "":
		return c, func() {}, nil
	case "zstd":
		zc, err := compressor.NewZstdCompressor()
		if err != nil {
			return nil, nil, err
		}
		return codec.Compressed(c, zc), zc.Close, nil
	default:
		return nil, nil, errors.Newf("unknown compression %q", compression)
	}
}

func readSnapshot(c codec.Codec, path string) (*snapshot.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v, err := codec.Decode(c, data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return v, nil
}

type fileStats struct {
	File  string         `json:"file"`
	Stats snapshot.Stats `json:"stats"`
}

func inspectCmd(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("inspect", e)
	codecName := fs.String("codec", codec.JSONName, "input codec, e.g. json, cbor, json+zstd")
	if err := fs.Parse(args); err != nil {
		return exitError{code: 2, msg: err.Error()}
	}
	c, release, err := resolveCodec(*codecName)
	if err != nil {
		return err
	}
	defer release()

	files := fs.Args()
	results := make([]fileStats, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hardware.GetCPUNum())
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := readSnapshot(c, path)
			if err != nil {
				return err
			}
			results[i] = fileStats{File: path, Stats: snapshot.Inspect(v)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.stdout, string(out))
	return err
}

func convertCmd(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("convert", e)
	from := fs.String("from", codec.JSONName, "input codec")
	to := fs.String("to", "", "output codec, e.g. cbor, proto, json+zstd")
	outDir := fs.String("out", "", "output directory, defaults to the input directory")
	if err := fs.Parse(args); err != nil {
		return exitError{code: 2, msg: err.Error()}
	}
	if *to == "" {
		return exitError{code: 2, msg: "convert: -to is required"}
	}

	in, releaseIn, err := resolveCodec(*from)
	if err != nil {
		return err
	}
	defer releaseIn()
	out, releaseOut, err := resolveCodec(*to)
	if err != nil {
		return err
	}
	defer releaseOut()

	logger := log.Ctx(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hardware.GetCPUNum())
	for _, path := range fs.Args() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := readSnapshot(in, path)
			if err != nil {
				return err
			}
			data, err := codec.Encode(out, v)
			if err != nil {
				return err
			}
			target := convertedPath(path, *outDir, out.Name())
			if err := os.WriteFile(target, data, 0o644); err != nil {
				return err
			}
			logger.Info("snapshot converted", zap.String("from", path), zap.String("to", target), log.FieldCodec(out.Name()))
			_, err = fmt.Fprintln(e.stdout, target)
			return err
		})
	}
	return g.Wait()
}

// convertedPath 用编码名替换扩展名，例如 a.json -> a.cbor、a.json -> a.json+zstd。
func convertedPath(path, dir, codecName string) string {
	if dir == "" {
		dir = filepath.Dir(path)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(dir, base+"."+codecName)
}

func validateCmd(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("validate", e)
	codecName := fs.String("codec", codec.JSONName, "input codec")
	types := fs.String("types", "", "comma separated list of known type names")
	if err := fs.Parse(args); err != nil {
		return exitError{code: 2, msg: err.Error()}
	}
	known := typeutil.NewSet[string]()
	for _, name := range strings.Split(*types, ",") {
		if name = strings.TrimSpace(name); name != "" {
			known.Insert(name)
		}
	}

	c, release, err := resolveCodec(*codecName)
	if err != nil {
		return err
	}
	defer release()

	failed := 0
	for _, path := range fs.Args() {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := readSnapshot(c, path)
		if err != nil {
			return err
		}
		stats := snapshot.Inspect(v)
		var unknown []string
		for _, name := range stats.SortedTypeNames() {
			if !known.Contain(name) {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			failed++
			fmt.Fprintf(e.stdout, "%s: unknown types %s\n", path, strings.Join(unknown, ", "))
			continue
		}
		fmt.Fprintf(e.stdout, "%s: ok\n", path)
	}
	if failed > 0 {
		return exitError{code: 1, msg: fmt.Sprintf("%d file(s) reference unknown types", failed)}
	}
	return nil
}
