package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) sweep() error {
	n, err := cli.svc.SweepExpired(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "deactivated %d expired session(s)\n", n)
	return nil
}
