// Command segpool exercises segmented pools from the command line.
package main

func main() {
	execute()
}
