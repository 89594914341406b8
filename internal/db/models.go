package db

import "github.com/storefrontapp/storefront/internal/models"

type Order = models.Order
type OrderStatus = models.OrderStatus
type Product = models.Product
type PushSubscription = models.PushSubscription
