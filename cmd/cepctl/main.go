// Command cepctl is a CLI client for the postal code lookup and favorites API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const usageText = `cepctl CLI
Usage:
  cepctl [-addr URL] [-timeout D] <cmd> [args]

Commands:
  version
  register  -name <name> -email <email> -p <password>
  login     -email <email> -p <password>      (saves token)
  logout                                      (revokes and forgets token)
  lookup    <cep>
  fav       -nick <nickname> <cep>
  unfav     <cep>
  list      [-page N] [-per-page N]
`

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func defaultAddr() string {
	if v := os.Getenv("CEPCTL_ADDR"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("cepctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	addr := global.String("addr", defaultAddr(), "server base URL")
	timeout := global.Duration("timeout", 15*time.Second, "request timeout")
	global.Usage = func() { fmt.Fprint(stderr, usageText) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() < 1 {
		global.Usage()
		return 2
	}
	cmd, rest := global.Arg(0), global.Args()[1:]

	fail := func(err error) int {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	authed := func() (*client, error) {
		tok, err := loadToken()
		if err != nil {
			return nil, err
		}
		return newClient(*addr, tok, *timeout), nil
	}

	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "cepctl %s (%s)\n", version, buildDate)

	case "register":
		fs := flag.NewFlagSet("register", flag.ContinueOnError)
		fs.SetOutput(stderr)
		name := fs.String("name", "", "display name")
		email := fs.String("email", "", "email")
		p := fs.String("p", "", "password")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		out, err := newClient(*addr, "", *timeout).register(ctx, *name, *email, *p)
		if err != nil {
			return fail(err)
		}
		printJSON(stdout, out)

	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		fs.SetOutput(stderr)
		email := fs.String("email", "", "email")
		p := fs.String("p", "", "password")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if *email == "" || *p == "" {
			fmt.Fprintln(stderr, "need -email and -p")
			return 2
		}
		resp, err := newClient(*addr, "", *timeout).login(ctx, *email, *p)
		if err != nil {
			return fail(err)
		}
		if err := saveToken(resp.AccessToken, resp.ExpiresAt); err != nil {
			return fail(err)
		}
		fmt.Fprintln(stdout, "ok")

	case "logout":
		c, err := authed()
		if err != nil {
			return fail(err)
		}
		var ae *apiError
		if err := c.logout(ctx); err != nil && !(errors.As(err, &ae) && ae.Status == 401) {
			return fail(err)
		}
		if err := removeToken(); err != nil {
			return fail(err)
		}
		fmt.Fprintln(stdout, "ok")

	case "lookup":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "usage: cepctl lookup <cep>")
			return 2
		}
		out, err := newClient(*addr, "", *timeout).lookup(ctx, rest[0])
		if err != nil {
			return fail(err)
		}
		printJSON(stdout, out)

	case "fav":
		fs := flag.NewFlagSet("fav", flag.ContinueOnError)
		fs.SetOutput(stderr)
		nick := fs.String("nick", "", "nickname")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "usage: cepctl fav -nick <nickname> <cep>")
			return 2
		}
		c, err := authed()
		if err != nil {
			return fail(err)
		}
		msg, err := c.favorite(ctx, fs.Arg(0), *nick)
		if err != nil {
			return fail(err)
		}
		fmt.Fprintln(stdout, msg)

	case "unfav":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "usage: cepctl unfav <cep>")
			return 2
		}
		c, err := authed()
		if err != nil {
			return fail(err)
		}
		msg, err := c.unfavorite(ctx, rest[0])
		if err != nil {
			return fail(err)
		}
		fmt.Fprintln(stdout, msg)

	case "list":
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		fs.SetOutput(stderr)
		page := fs.Int("page", 0, "page number")
		perPage := fs.Int("per-page", 0, "page size")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		c, err := authed()
		if err != nil {
			return fail(err)
		}
		out, err := c.list(ctx, *page, *perPage)
		if err != nil {
			return fail(err)
		}
		printJSON(stdout, out)

	default:
		global.Usage()
		return 2
	}
	return 0
}

func printJSON(w io.Writer, raw []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, _ = w.Write(raw)
		fmt.Fprintln(w)
		return
	}
	buf.WriteByte('\n')
	_, _ = buf.WriteTo(w)
}
