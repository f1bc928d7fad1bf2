package embedding

// Wait blocks until pending cache writes are applied
func (c *Cached) Wait() {
	c.cache.Wait()
}
