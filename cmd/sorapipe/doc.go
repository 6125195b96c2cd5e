// Command sorapipe is the CLI for the generative-video pipeline: it runs
// scenarios over the autogen, download, blur, merge, and upload stages and
// exposes status, history, detection, and maintenance utilities.
package main
