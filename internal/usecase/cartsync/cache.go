package cartsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domcart "example.com/cartsync/internal/domain/cart"
)

const (
	OpFetch  = "fetch"
	OpCreate = "create"
	OpSet    = "set"
	OpDelete = "delete"

	// provisionalPrefix marks line item IDs minted locally before the server
	// has assigned one.
	provisionalPrefix = "local-"

	DefaultTimeout = 5 * time.Second
)

var errProductRequired = errors.New("product id is required")

// Remote is the REST backend holding the authoritative cart.
type Remote interface {
	FetchCart(ctx context.Context, token string) ([]domcart.LineItem, error)
	// CreateItem returns the server-assigned line item ID when the backend
	// reports one, or "".
	CreateItem(ctx context.Context, token string, productID string, quantity int64) (string, error)
	SetQuantity(ctx context.Context, token string, productID string, quantity int64) error
	DeleteItem(ctx context.Context, token string, lineItemID string) error
}

// Recorder receives sync outcomes. A nil Recorder disables recording.
type Recorder interface {
	SyncRequest(op string, err error)
	Coalesced()
	RolledBack()
}

type Options struct {
	Logger   *zap.Logger
	Recorder Recorder
	// Timeout bounds every remote call. Zero means DefaultTimeout; negative
	// disables the bound.
	Timeout time.Duration
}

type line struct {
	item domcart.LineItem
	// confirmed is the last quantity the server acknowledged, 0 while the
	// line has never been created remotely.
	confirmed int64
}

// Cache is an optimistic in-memory mirror of one session's server-held cart.
// It is safe for concurrent use. At most one request per product is in flight
// at any time; updates arriving meanwhile only change local state and are
// pushed by the request owner once its call settles.
type Cache struct {
	remote   Remote
	logger   *zap.Logger
	recorder Recorder
	timeout  time.Duration

	mu    sync.Mutex
	lines []*line
	// gen changes whenever local state is replaced wholesale. Requests started
	// under an older generation settle without touching current state.
	gen      uint64
	inflight map[string]struct{}
	loaded   bool
}

func NewCache(remote Remote, opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Cache{
		remote:   remote,
		logger:   logger,
		recorder: recorder,
		timeout:  timeout,
		inflight: make(map[string]struct{}),
	}
}

// Load replaces local state with the server's cart. Without a token, or when
// the server rejects the token, the cart becomes empty and no error is
// returned. Other failures leave local state untouched.
func (c *Cache) Load(ctx context.Context, token string) error {
	if token == "" {
		c.reset()
		return nil
	}

	reqCtx, cancel := c.withTimeout(ctx)
	items, err := c.remote.FetchCart(reqCtx, token)
	cancel()
	c.recorder.SyncRequest(OpFetch, err)

	if errors.Is(err, domcart.ErrUnauthenticated) {
		c.logger.Info("cart load unauthenticated, using empty cart")
		c.reset()
		return nil
	}
	if err != nil {
		c.logger.Warn("cart load failed", zap.Error(err))
		return fmt.Errorf("load cart: %w", err)
	}

	lines := mergeLines(items)
	c.mu.Lock()
	c.lines = lines
	c.loaded = true
	c.detach()
	c.mu.Unlock()

	c.logger.Debug("cart loaded", zap.Int("lines", len(lines)))
	return nil
}

// AddItem increments the product's line, or appends a new one, and then asks
// the server to hold the new total. The local change is visible before the
// request resolves and is rolled back if the request fails.
func (c *Cache) AddItem(ctx context.Context, token string, product domcart.ProductRef, quantity int64) error {
	if quantity < 1 {
		return domcart.ErrInvalidQuantity
	}
	if product.ID == "" {
		return errProductRequired
	}
	if token == "" {
		return domcart.ErrUnauthenticated
	}

	c.mu.Lock()
	if l := c.findByProduct(product.ID); l != nil {
		l.item.Quantity += quantity
	} else {
		c.lines = append(c.lines, &line{
			item: domcart.LineItem{
				ID:       provisionalPrefix + uuid.NewString(),
				Product:  product,
				Quantity: quantity,
			},
		})
	}
	gen, owner := c.acquire(product.ID)
	c.mu.Unlock()

	if !owner {
		c.coalesced(product.ID)
		return nil
	}
	return c.sync(ctx, token, product.ID, gen)
}

// UpdateQuantity sets a line's quantity locally and pushes it to the server.
func (c *Cache) UpdateQuantity(ctx context.Context, token string, lineItemID string, quantity int64) error {
	if quantity < 1 {
		return domcart.ErrInvalidQuantity
	}
	if token == "" {
		return domcart.ErrUnauthenticated
	}

	c.mu.Lock()
	l := c.findByID(lineItemID)
	if l == nil {
		c.mu.Unlock()
		return domcart.ErrItemNotFound
	}
	l.item.Quantity = quantity
	productID := l.item.Product.ID
	gen, owner := c.acquire(productID)
	c.mu.Unlock()

	if !owner {
		c.coalesced(productID)
		return nil
	}
	return c.sync(ctx, token, productID, gen)
}

// RemoveItem deletes a line on the server and drops it locally only once the
// server confirmed the deletion. A line created by a backend that did not
// report its ID is resolved against the server's cart first.
func (c *Cache) RemoveItem(ctx context.Context, token string, lineItemID string) error {
	if token == "" {
		return domcart.ErrUnauthenticated
	}

	c.mu.Lock()
	l := c.findByID(lineItemID)
	if l == nil {
		c.mu.Unlock()
		return domcart.ErrItemNotFound
	}
	if l.confirmed == 0 {
		c.mu.Unlock()
		return domcart.ErrLineNotSynced
	}
	productID := l.item.Product.ID
	c.mu.Unlock()

	remoteID := lineItemID
	if IsProvisional(lineItemID) {
		id, err := c.resolveID(ctx, token, l)
		if err != nil {
			return err
		}
		remoteID = id
	}

	reqCtx, cancel := c.withTimeout(ctx)
	err := c.remote.DeleteItem(reqCtx, token, remoteID)
	cancel()
	c.recorder.SyncRequest(OpDelete, err)
	if err != nil {
		c.logger.Warn("cart item delete failed",
			zap.String("line_item_id", remoteID),
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return fmt.Errorf("remove cart item %s: %w", remoteID, err)
	}

	c.mu.Lock()
	for i, cur := range c.lines {
		if cur == l {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	return nil
}

// resolveID looks up the server's line item ID for a line that still carries
// a provisional one and adopts it locally.
func (c *Cache) resolveID(ctx context.Context, token string, l *line) (string, error) {
	c.mu.Lock()
	productID := l.item.Product.ID
	c.mu.Unlock()

	reqCtx, cancel := c.withTimeout(ctx)
	items, err := c.remote.FetchCart(reqCtx, token)
	cancel()
	c.recorder.SyncRequest(OpFetch, err)
	if err != nil {
		return "", fmt.Errorf("resolve line for product %s: %w", productID, err)
	}

	for _, it := range items {
		if it.Product.ID != productID || it.ID == "" || IsProvisional(it.ID) {
			continue
		}
		c.mu.Lock()
		if IsProvisional(l.item.ID) {
			l.item.ID = it.ID
		}
		c.mu.Unlock()
		return it.ID, nil
	}
	return "", fmt.Errorf("product %s: %w", productID, domcart.ErrLineNotSynced)
}

// Clear empties local state without contacting the server. Requests still in
// flight complete remotely but no longer affect the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.lines = nil
	c.detach()
	c.mu.Unlock()
}

func (c *Cache) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total float64
	for _, l := range c.lines {
		total += l.item.Subtotal()
	}
	return total
}

func (c *Cache) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int64
	for _, l := range c.lines {
		count += l.item.Quantity
	}
	return count
}

// Items returns a copy of the lines in insertion order.
func (c *Cache) Items() []domcart.LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]domcart.LineItem, 0, len(c.lines))
	for _, l := range c.lines {
		items = append(items, l.item)
	}
	return items
}

func (c *Cache) Line(lineItemID string) (domcart.LineItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l := c.findByID(lineItemID); l != nil {
		return l.item, true
	}
	return domcart.LineItem{}, false
}

// LineForProduct looks a line up by product ID.
func (c *Cache) LineForProduct(productID string) (domcart.LineItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l := c.findByProduct(productID); l != nil {
		return l.item, true
	}
	return domcart.LineItem{}, false
}

// Inflight reports whether a request for productID is outstanding.
func (c *Cache) Inflight(productID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.inflight[productID]
	return ok
}

func (c *Cache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// IsProvisional reports whether id was minted locally.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}

// sync pushes the product's local quantity until the server holds it. The
// caller must own the product's in-flight flag for gen; sync always releases
// it. A failed request whose value was already superseded locally is followed
// by one carrying the latest value; only the last failure is reported.
func (c *Cache) sync(ctx context.Context, token, productID string, gen uint64) error {
	for {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return nil
		}
		l := c.findByProduct(productID)
		if l == nil || l.item.Quantity == l.confirmed {
			c.release(productID)
			c.mu.Unlock()
			return nil
		}
		want := l.item.Quantity
		create := l.confirmed == 0
		c.mu.Unlock()

		var (
			op  string
			id  string
			err error
		)
		reqCtx, cancel := c.withTimeout(ctx)
		if create {
			op = OpCreate
			id, err = c.remote.CreateItem(reqCtx, token, productID, want)
		} else {
			op = OpSet
			err = c.remote.SetQuantity(reqCtx, token, productID, want)
		}
		cancel()
		c.recorder.SyncRequest(op, err)

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			c.logger.Debug("cart replaced while request was in flight, result discarded",
				zap.String("op", op),
				zap.String("product_id", productID),
				zap.Error(err),
			)
			if err != nil {
				return fmt.Errorf("sync product %s: %w", productID, err)
			}
			return nil
		}
		l = c.findByProduct(productID)
		if err != nil {
			if l != nil && l.item.Quantity != want && ctx.Err() == nil {
				c.mu.Unlock()
				c.logger.Debug("superseded cart update failed, sending latest",
					zap.String("op", op),
					zap.String("product_id", productID),
					zap.Int64("quantity", want),
					zap.Error(err),
				)
				continue
			}
			rolledBack := c.rollback(l, want, ctx.Err() != nil)
			c.release(productID)
			c.mu.Unlock()

			c.logger.Warn("cart sync failed",
				zap.String("op", op),
				zap.String("product_id", productID),
				zap.Int64("quantity", want),
				zap.Bool("rolled_back", rolledBack),
				zap.Error(err),
			)
			return fmt.Errorf("sync product %s: %w", productID, err)
		}
		if l != nil {
			l.confirmed = want
			if create && id != "" {
				l.item.ID = id
			}
		}
		c.mu.Unlock()
	}
}

// rollback restores the last acknowledged quantity unless a newer local
// change superseded the failed one and force is unset. A line never created
// remotely is removed. Must be called with c.mu held.
func (c *Cache) rollback(l *line, failed int64, force bool) bool {
	if l == nil || (!force && l.item.Quantity != failed) {
		return false
	}
	if l.confirmed == 0 {
		for i, cur := range c.lines {
			if cur == l {
				c.lines = append(c.lines[:i], c.lines[i+1:]...)
				break
			}
		}
	} else {
		l.item.Quantity = l.confirmed
	}
	c.recorder.RolledBack()
	return true
}

func (c *Cache) coalesced(productID string) {
	c.recorder.Coalesced()
	c.logger.Debug("cart update coalesced into in-flight request", zap.String("product_id", productID))
}

// acquire marks productID in flight and reports whether the caller became
// the owner, along with the generation it owns the flag for. Must be called
// with c.mu held.
func (c *Cache) acquire(productID string) (uint64, bool) {
	if _, busy := c.inflight[productID]; busy {
		return c.gen, false
	}
	c.inflight[productID] = struct{}{}
	return c.gen, true
}

func (c *Cache) release(productID string) {
	delete(c.inflight, productID)
}

// detach starts a new generation so requests in flight stop owning their
// products. Must be called with c.mu held.
func (c *Cache) detach() {
	c.gen++
	c.inflight = make(map[string]struct{})
}

func (c *Cache) reset() {
	c.mu.Lock()
	c.lines = nil
	c.loaded = true
	c.detach()
	c.mu.Unlock()
}

func (c *Cache) findByProduct(productID string) *line {
	for _, l := range c.lines {
		if l.item.Product.ID == productID {
			return l
		}
	}
	return nil
}

func (c *Cache) findByID(lineItemID string) *line {
	for _, l := range c.lines {
		if l.item.ID == lineItemID {
			return l
		}
	}
	return nil
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout < 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// mergeLines folds server rows into lines, one per product, dropping rows
// with a non-positive quantity.
func mergeLines(items []domcart.LineItem) []*line {
	lines := make([]*line, 0, len(items))
	byProduct := make(map[string]*line, len(items))
	for _, it := range items {
		if it.Quantity < 1 || it.Product.ID == "" {
			continue
		}
		if l, ok := byProduct[it.Product.ID]; ok {
			l.item.Quantity += it.Quantity
			l.confirmed = l.item.Quantity
			continue
		}
		l := &line{item: it, confirmed: it.Quantity}
		byProduct[it.Product.ID] = l
		lines = append(lines, l)
	}
	return lines
}

type nopRecorder struct{}

func (nopRecorder) SyncRequest(string, error) {}
func (nopRecorder) Coalesced()                {}
func (nopRecorder) RolledBack()               {}
