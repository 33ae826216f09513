package pool

// groupIndex is the bidirectional connection index: group name to member
// records, and owner identity to that owner's records. It is not internally
// synchronized; every method must be called with the pool lock held.
type groupIndex struct {
	groups map[string]map[string]*Conn
	owners map[string]map[string]*Conn

	// Total group memberships across all connections, maintained
	// incrementally so admission can estimate memory in O(1).
	memberships int
}

func newGroupIndex() *groupIndex {
	return &groupIndex{
		groups: make(map[string]map[string]*Conn),
		owners: make(map[string]map[string]*Conn),
	}
}

// addOwner records a connection under its owner bucket.
func (ix *groupIndex) addOwner(c *Conn) {
	bucket, ok := ix.owners[c.Owner]
	if !ok {
		bucket = make(map[string]*Conn)
		ix.owners[c.Owner] = bucket
	}
	bucket[c.ID] = c
}

// join adds a connection to a group bucket and to the record's own set.
// Returns false if the connection was already a member.
func (ix *groupIndex) join(c *Conn, group string) bool {
	if _, ok := c.groups[group]; ok {
		return false
	}
	bucket, ok := ix.groups[group]
	if !ok {
		bucket = make(map[string]*Conn)
		ix.groups[group] = bucket
	}
	bucket[c.ID] = c
	c.groups[group] = struct{}{}
	ix.memberships++
	return true
}

// leave removes a connection from a group bucket and from the record's own
// set, pruning the bucket if it empties. Returns false if the connection
// was not a member.
func (ix *groupIndex) leave(c *Conn, group string) bool {
	if _, ok := c.groups[group]; !ok {
		return false
	}
	delete(c.groups, group)
	ix.memberships--

	bucket, ok := ix.groups[group]
	if !ok {
		return true
	}
	delete(bucket, c.ID)
	if len(bucket) == 0 {
		delete(ix.groups, group)
	}
	return true
}

// remove drops a connection from every group bucket and its owner bucket,
// pruning any bucket left empty. Keeps the index and the record's groups
// set consistent as a unit.
func (ix *groupIndex) remove(c *Conn) {
	for group := range c.groups {
		delete(c.groups, group)
		ix.memberships--

		bucket, ok := ix.groups[group]
		if !ok {
			continue
		}
		delete(bucket, c.ID)
		if len(bucket) == 0 {
			delete(ix.groups, group)
		}
	}

	bucket, ok := ix.owners[c.Owner]
	if !ok {
		return
	}
	delete(bucket, c.ID)
	if len(bucket) == 0 {
		delete(ix.owners, c.Owner)
	}
}

// members returns a snapshot copy of a group bucket.
func (ix *groupIndex) members(group string) []*Conn {
	bucket := ix.groups[group]
	out := make([]*Conn, 0, len(bucket))
	for _, c := range bucket {
		out = append(out, c)
	}
	return out
}

// byOwner returns a snapshot copy of an owner bucket.
func (ix *groupIndex) byOwner(owner string) []*Conn {
	bucket := ix.owners[owner]
	out := make([]*Conn, 0, len(bucket))
	for _, c := range bucket {
		out = append(out, c)
	}
	return out
}

// ownerCount returns the number of connections held by one owner.
func (ix *groupIndex) ownerCount(owner string) int {
	return len(ix.owners[owner])
}
