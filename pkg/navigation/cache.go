package navigation

import (
	"sort"

	"github.com/hashicorp/go-multierror"
)

// Cache maps type name -> method name -> H. Type names are normalized on every
// access.
//
// When release is set, the cache owns every value it holds: replacing a value
// releases the previous one first, and Release frees method values before type
// values.
type Cache[H any] struct {
	types   map[string]H
	methods map[string]map[string]H
	release func(H) error
}

// NewCache creates an empty cache. release may be nil for plain values.
func NewCache[H any](release func(H) error) *Cache[H] {
	return &Cache[H]{
		types:   make(map[string]H),
		methods: make(map[string]map[string]H),
		release: release,
	}
}

// AddType stores the handle of a type, releasing a previously cached one.
func (c *Cache[H]) AddType(typeName string, h H) error {
	typeName = NormalizeTypeName(typeName)

	var err error
	if prev, ok := c.types[typeName]; ok {
		err = c.free(prev)
	}
	c.types[typeName] = h
	if _, ok := c.methods[typeName]; !ok {
		c.methods[typeName] = make(map[string]H)
	}
	return err
}

// Type returns the cached handle of a type.
func (c *Cache[H]) Type(typeName string) (H, bool) {
	h, ok := c.types[NormalizeTypeName(typeName)]
	return h, ok
}

// AddMethod stores the handle of a method under its type.
//
// Overloads share a name, so the last one cached wins. The handle it replaces
// is released before being overwritten.
func (c *Cache[H]) AddMethod(typeName, methodName string, h H) error {
	typeName = NormalizeTypeName(typeName)

	methods, ok := c.methods[typeName]
	if !ok {
		methods = make(map[string]H)
		c.methods[typeName] = methods
	}

	var err error
	if prev, ok := methods[methodName]; ok {
		err = c.free(prev)
	}
	methods[methodName] = h
	return err
}

// Method returns the cached handle of a method.
func (c *Cache[H]) Method(typeName, methodName string) (H, bool) {
	h, ok := c.methods[NormalizeTypeName(typeName)][methodName]
	return h, ok
}

// Types returns the cached type names in sorted order, including types that
// only gained entries through AddMethod.
func (c *Cache[H]) Types() []string {
	names := make([]string, 0, len(c.methods))
	for name := range c.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Methods returns the cached method names of a type in sorted order.
func (c *Cache[H]) Methods(typeName string) []string {
	methods := c.methods[NormalizeTypeName(typeName)]
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of cached methods across all types.
func (c *Cache[H]) Len() int {
	n := 0
	for _, methods := range c.methods {
		n += len(methods)
	}
	return n
}

// Release frees every method handle, then every type handle, and empties the
// cache. Release errors are collected; the cache is empty either way.
func (c *Cache[H]) Release() error {
	var result *multierror.Error

	for typeName, methods := range c.methods {
		for _, h := range methods {
			if err := c.free(h); err != nil {
				result = multierror.Append(result, err)
			}
		}
		delete(c.methods, typeName)
	}

	for typeName, h := range c.types {
		if err := c.free(h); err != nil {
			result = multierror.Append(result, err)
		}
		delete(c.types, typeName)
	}

	return result.ErrorOrNil()
}

func (c *Cache[H]) free(h H) error {
	if c.release == nil {
		return nil
	}
	return c.release(h)
}
