// Package allocator manages one contiguous region of the machine arena as a
// heap of variable sized blocks. Block headers live inside the arena: a free
// block carries {tag, size, next, prev} at both ends, a busy block carries
// {tag, size} in front of its payload. The free list is doubly linked through
// arena offsets and searched next-fit.
package allocator
