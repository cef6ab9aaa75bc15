// Command tenexcore is the CLI/daemon frontend over the core engine
// (spec 1, 6.4): a single embeddable library backing a terminal UI, a
// headless daemon with HTTP/IPC surfaces, and a synchronous FFI facade.
// This binary wires the CLI surface only.
package main

import "github.com/tenex-go/tenexcore/internal/cmd"

func main() {
	cmd.Execute()
}
