package repositories

import "errors"

var (
	// ErrPaymentIntentReserved is wrapped by the conflict Insert returns when another
	// order already holds the payment intent.
	ErrPaymentIntentReserved = errors.New("repositories: payment intent already reserved")
	// ErrSlugTaken is wrapped by the conflict a catalog upsert returns when the slug
	// belongs to another record.
	ErrSlugTaken = errors.New("repositories: slug already taken")
	// ErrWishlistFull is wrapped by the conflict WishlistRepository.Put returns at the limit.
	ErrWishlistFull = errors.New("repositories: wishlist limit reached")
)
