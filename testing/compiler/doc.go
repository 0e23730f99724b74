/*
Package compiler builds the helper binaries used by acceptance tests, such as
fake servers driven through a resource controller.

Binaries are written to a temporary directory that Cleanup removes. Compiling
the same name twice returns the first build.
*/
package compiler
