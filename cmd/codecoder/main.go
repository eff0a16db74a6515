// Command codecoder is the single binary exposing the Channel Fan-in,
// Human-in-the-Loop Approval Engine, and API Gateway cores (spec.md
// §6.3) as a Cobra CLI.
package main

func main() {
	Execute()
}
