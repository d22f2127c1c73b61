package exec

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/paulgasbarra/together-we-code/internal/models"
)

// Supported language names, as they appear in submit-answer payloads.
const (
	LangJavaScript = "javascript"
	LangPython     = "python"
)

// Host programs exit with these codes so the runner can tell a compile-phase
// failure from a runtime one without parsing stderr.
const (
	exitOK      = 0
	exitRuntime = 1
	exitCompile = 2
)

// hostProfile describes how one language hosts a candidate invocation. The
// host program is a fixed template: the candidate source and the invocation
// payload travel as separate files, never spliced into program text.
type hostProfile struct {
	Language   string
	Image      string
	SourceFile string
	HostFile   string
	Host       string
	Cmd        []string
}

// invokePayload is the structured channel for trusted fixture data (function
// name and argument values). Hosts decode each value as a JSON literal where
// possible, falling back to the raw string.
type invokePayload struct {
	Function string   `json:"function"`
	Args     []string `json:"args"`
}

const payloadFile = "invoke.json"

var javascriptProfile = hostProfile{
	Language:   LangJavaScript,
	Image:      "node:20-slim",
	SourceFile: "solution.js",
	HostFile:   "host.js",
	Cmd:        []string{"node", "host.js"},
	Host: `"use strict";
const fs = require("fs");
const vm = require("vm");

const spec = JSON.parse(fs.readFileSync("invoke.json", "utf8"));
const source = fs.readFileSync("solution.js", "utf8");

let script;
try {
  script = new vm.Script(source, { filename: "solution.js" });
} catch (err) {
  process.stderr.write(String(err));
  process.exit(2);
}

const sandbox = { console, module: { exports: {} }, exports: {} };
sandbox.globalThis = sandbox;
vm.createContext(sandbox);
try {
  script.runInContext(sandbox);
} catch (err) {
  process.stderr.write(String(err && err.stack ? err.stack : err));
  process.exit(1);
}

let fn = sandbox[spec.function];
if (typeof fn !== "function") {
  fn = sandbox.module.exports[spec.function];
}
if (typeof fn !== "function") {
  process.stderr.write("function " + spec.function + " is not defined");
  process.exit(1);
}

const args = spec.args.map((raw) => {
  try {
    return JSON.parse(raw);
  } catch {
    return raw;
  }
});

try {
  const out = fn(...args);
  process.stdout.write(String(out) + "\n");
} catch (err) {
  process.stderr.write(String(err && err.stack ? err.stack : err));
  process.exit(1);
}
`,
}

var pythonProfile = hostProfile{
	Language:   LangPython,
	Image:      "python:3.11-slim",
	SourceFile: "solution.py",
	HostFile:   "host.py",
	Cmd:        []string{"python3", "host.py"},
	Host: `import json
import sys
import traceback

with open("invoke.json") as f:
    spec = json.load(f)
with open("solution.py") as f:
    source = f.read()

try:
    compiled = compile(source, "solution.py", "exec")
except SyntaxError:
    traceback.print_exc()
    sys.exit(2)

namespace = {}
try:
    exec(compiled, namespace)
except Exception:
    traceback.print_exc()
    sys.exit(1)

fn = namespace.get(spec["function"])
if not callable(fn):
    sys.stderr.write("function %s is not defined" % spec["function"])
    sys.exit(1)


def decode(raw):
    try:
        return json.loads(raw)
    except ValueError:
        return raw


args = [decode(a) for a in spec["args"]]
try:
    result = fn(*args)
except Exception:
    traceback.print_exc()
    sys.exit(1)

print(result)
`,
}

// SandboxRunner hosts one language inside the docker sandbox.
type SandboxRunner struct {
	profile hostProfile
	limits  Limits
}

func NewSandboxRunner(profile hostProfile, limits Limits) *SandboxRunner {
	return &SandboxRunner{profile: profile, limits: limits.withDefaults()}
}

// Run executes candidate code against one test invocation in a fresh
// container. Output beyond a single trimmed stdout line never reaches the
// caller's comparison; stderr feeds the error classification only.
func (r *SandboxRunner) Run(ctx context.Context, code, functionName string, args []models.Arg) (string, error) {
	values := make([]string, len(args))
	for i, a := range args {
		values[i] = a.Value
	}
	payload, err := json.Marshal(invokePayload{Function: functionName, Args: values})
	if err != nil {
		return "", &Error{Kind: KindSandbox, Message: err.Error()}
	}

	files := []File{
		{Name: r.profile.SourceFile, Data: []byte(code)},
		{Name: payloadFile, Data: payload},
		{Name: r.profile.HostFile, Data: []byte(r.profile.Host)},
	}

	sbx, err := NewSandbox(r.profile.Image, r.limits)
	if err != nil {
		return "", err
	}

	var stdout, stderr strings.Builder
	exit, timedOut, err := sbx.Run(ctx, files, r.profile.Cmd,
		func(p []byte) { stdout.Write(p) },
		func(p []byte) { stderr.Write(p) },
	)
	if err != nil {
		return "", err
	}
	if timedOut {
		return "", &Error{Kind: KindTimeout}
	}

	switch exit {
	case exitOK:
		return strings.TrimSpace(stdout.String()), nil
	case exitCompile:
		return "", &Error{Kind: KindCompile, Message: strings.TrimSpace(stderr.String())}
	default:
		return "", &Error{Kind: KindRuntime, Message: strings.TrimSpace(stderr.String())}
	}
}
