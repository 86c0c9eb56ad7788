// Command buildcore is the CLI front end for the engine: loading a
// project, resolving element graphs, and driving them through the
// track/fetch/build/push pipeline.
package main

import "os"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
