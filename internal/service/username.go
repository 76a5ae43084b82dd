package service

import (
	"context"
	"fmt"
	"strconv"
)

// ResolveUsername returns base if it is unused, otherwise the first free
// candidate among base1, base2, ... in increasing order. It is the single
// collision-resolution path for every auto-named account; terminates after at
// most one probe per existing account plus one.
func ResolveUsername(ctx context.Context, base string, exists func(context.Context, string) (bool, error)) (string, error) {
	name := base
	for i := 1; ; i++ {
		taken, err := exists(ctx, name)
		if err != nil {
			return "", fmt.Errorf("check username %q: %w", name, err)
		}
		if !taken {
			return name, nil
		}
		name = base + strconv.Itoa(i)
	}
}
