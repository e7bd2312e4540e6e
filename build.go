//go:build ignore

package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// target is a release platform, cc names its C cross compiler.
type target struct {
	goos, goarch, goarm string
	cc                  string
}

var targets = []target{
	{goos: "linux", goarch: "arm", goarm: "6", cc: "arm-linux-gnueabihf-gcc"},
	{goos: "linux", goarch: "arm", goarm: "7", cc: "arm-linux-gnueabihf-gcc"},
	{goos: "linux", goarch: "arm64", cc: "aarch64-linux-gnu-gcc"},
	{goos: "linux", goarch: "386", cc: "i686-linux-gnu-gcc"},
	{goos: "linux", goarch: "amd64", cc: "x86_64-linux-gnu-gcc"},
}

func (t target) String() string {
	if t.goarm != "" {
		return fmt.Sprintf("%s-%s-v%s", t.goos, t.goarch, t.goarm)
	}
	return fmt.Sprintf("%s-%s", t.goos, t.goarch)
}

func (t target) native() bool {
	return t.goos == runtime.GOOS && t.goarch == runtime.GOARCH
}

// compiler returns C compiler for target, CC_<goos>_<goarch> environment variable overrides the default.
func (t target) compiler() (string, error) {
	if cc := os.Getenv(fmt.Sprintf("CC_%s_%s", t.goos, t.goarch)); cc != "" {
		return cc, nil
	}
	if t.native() {
		if cc := os.Getenv("CC"); cc != "" {
			return cc, nil
		}
		return "cc", nil
	}
	if _, err := exec.LookPath(t.cc); err != nil {
		return "", fmt.Errorf("C cross compiler %s not found, install it or set CC_%s_%s", t.cc, t.goos, t.goarch)
	}
	return t.cc, nil
}

type result struct {
	target         target
	cc             string
	stdout, stderr string
	err            error
}

type options struct {
	project, basename, tags string
	race                    bool
}

func build(t target, opts options) result {
	res := result{target: t}

	cc, err := t.compiler()
	if err != nil {
		res.err = err
		return res
	}
	res.cc = cc

	// rtmidi input is a cgo binding
	env := append(os.Environ(), "GOOS="+t.goos, "GOARCH="+t.goarch, "CGO_ENABLED=1", "CC="+cc)
	if t.goarm != "" {
		env = append(env, "GOARM="+t.goarm)
	}

	args := []string{"build", "-o", fmt.Sprintf("./builds/%s-%s", opts.basename, t)}
	if opts.tags != "" {
		args = append(args, "-tags", opts.tags)
	}
	if opts.race {
		args = append(args, "-race")
	}
	args = append(args, opts.project)

	var stdout, stderr bytes.Buffer
	cmd := exec.Command("go", args...)
	cmd.Env = env
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res.err = cmd.Run()
	res.stdout, res.stderr = stdout.String(), stderr.String()
	return res
}

func selectTargets(selection string) ([]target, error) {
	if selection == "all" {
		return targets, nil
	}
	var selected []target
	for _, name := range strings.Split(selection, ",") {
		found := false
		for _, t := range targets {
			if t.String() == name {
				selected = append(selected, t)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("target not found: %s", name)
		}
	}
	return selected, nil
}

func main() {
	var names []string
	for _, t := range targets {
		names = append(names, t.String())
	}

	var opts options
	selection := flag.String("platforms", "all", fmt.Sprintf(
		"comma-separated target platform list\navailable: %s", strings.Join(names, ",")),
	)
	flag.StringVar(&opts.project, "project", "./cmd/magneto/", "choose project directory")
	flag.StringVar(&opts.basename, "base", "magneto", "base filename for output binaries")
	flag.StringVar(&opts.tags, "tags", "", "comma-separated build tags")
	flag.BoolVar(&opts.race, "race", false, "include race detector")
	flag.Parse()

	log.SetFlags(log.Ltime)

	selected, err := selectTargets(*selection)
	if err != nil {
		log.Print(err)
		os.Exit(1)
	}
	log.Printf("building %s for %d targets", opts.project, len(selected))

	results := make([]result, len(selected))
	wg := sync.WaitGroup{}
	for i, t := range selected {
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()
			results[i] = build(t, opts)
		}(i, t)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.err == nil {
			log.Printf("%-16s ok (cc: %s)", r.target, r.cc)
			continue
		}
		failed++
		log.Printf("%-16s failed: %v", r.target, r.err)
		if r.stdout != "" {
			fmt.Printf("======== STDOUT ========\n%s========================\n", r.stdout)
		}
		if r.stderr != "" {
			fmt.Printf("======== STDERR ========\n%s========================\n", r.stderr)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}
