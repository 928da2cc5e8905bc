// Package engine runs the tier pipeline: the bounded classification queues
// that resolve archive sub-categories and vision analyses, the capacity
// rebalancer, and the cycle that chains them.
package engine
