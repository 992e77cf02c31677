//go:build debug

package debug

import "fmt"

func assert(cond bool, args ...any) {
	if !cond {
		panic(fmt.Sprint(args...))
	}
}

func assertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}
