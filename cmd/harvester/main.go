// Command harvester is the thin cobra entrypoint over internal/*, modeled
// on go-civitai-download's cmd package (itself modeled on the teacher's
// single-binary backend/cmd/server). It contains no business logic: every
// subcommand parses flags/config and delegates into the internal engines.
package main

func main() {
	Execute()
}
